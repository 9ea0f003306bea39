package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	maxLineBytes          = 1024 * 1024
	DefaultFollowInterval = 250 * time.Millisecond
)

// Last returns up to n trailing lines of path that match filter, plus the
// offset reading stopped at. A missing file yields no lines.
func Last(path string, n int, filter Filter) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	if info, err := file.Stat(); err != nil {
		return nil, 0, fmt.Errorf("stat log file: %w", err)
	} else if info.IsDir() {
		return nil, 0, fmt.Errorf("log path %q is a directory", path)
	}

	if n <= 0 {
		end, err := file.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, fmt.Errorf("seek log file: %w", err)
		}
		return nil, end, nil
	}

	window := make([]string, 0, n)
	offset, err := scanLines(file, 0, func(line string) {
		if !filter.Match(line) {
			return
		}
		if len(window) == n {
			window = append(window[:0], window[1:]...)
		}
		window = append(window, line)
	})
	if err != nil {
		return nil, 0, err
	}
	return window, offset, nil
}

// Follow emits matching lines appended to path after offset until ctx is
// done or emit returns an error. Truncation and replacement of the file both
// restart reading at the top.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, filter Filter, emit func(string) error) error {
	if interval <= 0 {
		interval = DefaultFollowInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last os.FileInfo
	for {
		info, err := os.Stat(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			offset, last = 0, nil
		case err != nil:
			return fmt.Errorf("stat log file: %w", err)
		default:
			if last != nil && !os.SameFile(last, info) {
				offset = 0
			}
			if info.Size() < offset {
				offset = 0
			}
			last = info
			if info.Size() > offset {
				offset, err = readFrom(path, offset, filter, emit)
				if err != nil {
					return err
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func readFrom(path string, offset int64, filter Filter, emit func(string) error) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var emitErr error
	next, err := scanLines(file, offset, func(line string) {
		if emitErr != nil || !filter.Match(line) {
			return
		}
		emitErr = emit(line)
	})
	if err != nil {
		return offset, err
	}
	return next, emitErr
}

// scanLines feeds complete lines from offset to fn and returns the offset just
// past the last newline, so a partially written line is read again next time.
func scanLines(file *os.File, offset int64, fn func(string)) (int64, error) {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadSlice('\n')
		if err == nil {
			offset += int64(len(line))
			fn(string(line[:len(line)-1]))
			continue
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			// Overlong line: consume and drop it.
			skipped := int64(len(line))
			for errors.Is(err, bufio.ErrBufferFull) && skipped < maxLineBytes {
				line, err = reader.ReadSlice('\n')
				skipped += int64(len(line))
			}
			if err == nil {
				offset += skipped
				continue
			}
		}
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			return offset, fmt.Errorf("read log file: line exceeds %d bytes", maxLineBytes)
		}
		return offset, fmt.Errorf("read log file: %w", err)
	}
}
