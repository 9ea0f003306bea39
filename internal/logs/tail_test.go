package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"memsweep/internal/logs"
)

const sampleLog = `2026-01-02T03:04:05Z INFO daemon: memsweep daemon started
2026-01-02T03:04:06Z DEBUG scheduler: [interval] tick
2026-01-02T03:04:07Z WARN reclaim: [manual 1a2b3c4d] memory.reclaim returned partial result
{"ts":"2026-01-02T03:04:08Z","level":"error","component":"ipc","msg":"accept failed"}
2026-01-02T03:04:09Z INFO scheduler: pass finished
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memsweep.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestLast(t *testing.T) {
	path := writeLog(t, sampleLog)

	tests := []struct {
		name   string
		n      int
		filter logs.Filter
		want   []string
	}{
		{"tail two", 2, logs.Filter{}, []string{
			`{"ts":"2026-01-02T03:04:08Z","level":"error","component":"ipc","msg":"accept failed"}`,
			"2026-01-02T03:04:09Z INFO scheduler: pass finished",
		}},
		{"component", 5, logs.Filter{Component: "scheduler"}, []string{
			"2026-01-02T03:04:06Z DEBUG scheduler: [interval] tick",
			"2026-01-02T03:04:09Z INFO scheduler: pass finished",
		}},
		{"min level", 5, logs.Filter{MinLevel: "warn"}, []string{
			"2026-01-02T03:04:07Z WARN reclaim: [manual 1a2b3c4d] memory.reclaim returned partial result",
			`{"ts":"2026-01-02T03:04:08Z","level":"error","component":"ipc","msg":"accept failed"}`,
		}},
		{"json component", 5, logs.Filter{Component: "ipc"}, []string{
			`{"ts":"2026-01-02T03:04:08Z","level":"error","component":"ipc","msg":"accept failed"}`,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines, offset, err := logs.Last(path, tt.n, tt.filter)
			if err != nil {
				t.Fatalf("Last: %v", err)
			}
			if !slices.Equal(lines, tt.want) {
				t.Fatalf("unexpected lines:\n got %q\nwant %q", lines, tt.want)
			}
			if offset != int64(len(sampleLog)) {
				t.Fatalf("expected offset at end of file, got %d", offset)
			}
		})
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, offset, err := logs.Last(filepath.Join(t.TempDir(), "missing.log"), 10, logs.Filter{})
	if err != nil || len(lines) != 0 || offset != 0 {
		t.Fatalf("expected empty result, got %v %d %v", lines, offset, err)
	}
}

func TestLastLeavesPartialLine(t *testing.T) {
	path := writeLog(t, "one\ntwo")
	lines, offset, err := logs.Last(path, 5, logs.Filter{})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if !slices.Equal(lines, []string{"one"}) || offset != 4 {
		t.Fatalf("unexpected result: %q offset=%d", lines, offset)
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) emit(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	return nil
}

func (c *collector) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.lines) >= n {
			out := append([]string(nil), c.lines...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines", n)
	return nil
}

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	_ = f.Close()
}

func TestFollowEmitsAppendedAndRestartsOnTruncate(t *testing.T) {
	path := writeLog(t, "start\n")
	_, offset, err := logs.Last(path, 1, logs.Filter{})
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &collector{}
	done := make(chan error, 1)
	go func() {
		done <- logs.Follow(ctx, path, offset, 10*time.Millisecond, logs.Filter{}, out.emit)
	}()

	appendLine(t, path, "later")
	if got := out.waitFor(t, 1); got[0] != "later" {
		t.Fatalf("unexpected first line: %q", got)
	}

	if err := os.WriteFile(path, []byte("fresh\n"), 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if got := out.waitFor(t, 2); got[1] != "fresh" {
		t.Fatalf("expected read from top after truncate, got %q", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Follow: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not stop after cancel")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want logs.Entry
	}{
		{"2026-01-02T03:04:05Z INFO daemon: started", logs.Entry{Level: "info", Component: "daemon"}},
		{"2026-01-02T03:04:05Z WARN [manual] no component", logs.Entry{Level: "warn"}},
		{`{"level":"debug","component":"reclaim"}`, logs.Entry{Level: "debug", Component: "reclaim"}},
		{"garbage", logs.Entry{}},
	}
	for _, tt := range tests {
		if got := logs.Parse(tt.line); got != tt.want {
			t.Fatalf("Parse(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}
