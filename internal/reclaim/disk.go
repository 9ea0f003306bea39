package reclaim

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"memsweep/internal/logging"
)

// PurgeResult summarises a disk cleanup sweep.
type PurgeResult struct {
	FilesRemoved int
	DirsRemoved  int
	BytesFreed   int64
	Errors       []CleanupError
}

// CleanupError pairs a path with the error that kept it on disk.
type CleanupError struct {
	Path  string
	Error error
}

// PurgeStale deletes regular files and symlinks under root last modified
// before cutoff, then removes directories left empty. Recently modified
// entries are assumed to be in use. root itself is never removed.
func PurgeStale(ctx context.Context, root string, cutoff time.Time) PurgeResult {
	var result PurgeResult
	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}

	var staleDirs []string
	walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path != root && !errors.Is(err, fs.ErrNotExist) {
				result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			}
			if entry != nil && entry.IsDir() && path != root {
				return fs.SkipDir
			}
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return nil
		}
		if entry.IsDir() {
			if path != root && info.ModTime().Before(cutoff) {
				staleDirs = append(staleDirs, path)
			}
			return nil
		}
		if !entry.Type().IsRegular() && entry.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: path, Error: err})
			return nil
		}
		result.FilesRemoved++
		if entry.Type().IsRegular() {
			result.BytesFreed += info.Size()
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.ErrNotExist) {
		result.Errors = append(result.Errors, CleanupError{Path: root, Error: walkErr})
	}

	// WalkDir visits parents first, so deepest directories come last.
	for i := len(staleDirs) - 1; i >= 0; i-- {
		if os.Remove(staleDirs[i]) == nil {
			result.DirsRemoved++
		}
	}
	return result
}

func (l *linux) purgeTempFiles(ctx context.Context) error {
	cutoff := l.opts.Now().Add(-l.opts.TempMinAge)
	var total PurgeResult
	for _, dir := range l.opts.TempDirs {
		res := PurgeStale(ctx, dir, cutoff)
		total.FilesRemoved += res.FilesRemoved
		total.DirsRemoved += res.DirsRemoved
		total.BytesFreed += res.BytesFreed
		total.Errors = append(total.Errors, res.Errors...)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.logger.Info("temp files purged",
		logging.Int("files_removed", total.FilesRemoved),
		logging.Int("dirs_removed", total.DirsRemoved),
		logging.Int64("bytes_freed", total.BytesFreed),
		logging.String(logging.FieldEventType, "temp_purge"),
	)
	if len(total.Errors) > 0 {
		// Files held by other users or processes are expected; report once.
		l.logger.Debug("temp files skipped",
			logging.Int("count", len(total.Errors)),
			logging.String("first_path", total.Errors[0].Path),
			logging.Error(total.Errors[0].Error),
		)
	}
	return nil
}

// emptyRecycleBin clears the freedesktop trash. An empty or missing trash is
// not an error.
func (l *linux) emptyRecycleBin(ctx context.Context) error {
	trash := strings.TrimSpace(l.opts.TrashDir)
	if trash == "" {
		return nil
	}
	var errs []error
	removed := 0
	for _, sub := range []string{"files", "info"} {
		dir := filepath.Join(trash, sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
				errs = append(errs, err)
				continue
			}
			if sub == "files" {
				removed++
			}
		}
	}
	if removed > 0 {
		l.logger.Info("recycle bin emptied",
			logging.Int("items_removed", removed),
			logging.String(logging.FieldEventType, "trash_emptied"),
		)
	}
	return errors.Join(errs...)
}
