package memory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleMeminfo = `MemTotal:       16000000 kB
MemFree:         1000000 kB
MemAvailable:    4000000 kB
Buffers:          200000 kB
Cached:          3000000 kB
SwapTotal:       2000000 kB
`

func writeMeminfo(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "meminfo"), []byte(content), 0o644); err != nil {
		t.Fatalf("write meminfo: %v", err)
	}
	return root
}

func TestProcSamplerReadsMemAvailable(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	sampler := NewProcSampler(writeMeminfo(t, sampleMeminfo))
	sampler.now = func() time.Time { return fixed }

	snap, err := sampler.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if snap.TotalBytes != 16000000*1024 {
		t.Fatalf("unexpected total: %d", snap.TotalBytes)
	}
	if snap.AvailableBytes != 4000000*1024 {
		t.Fatalf("unexpected available: %d", snap.AvailableBytes)
	}
	if snap.LoadPercent != 75 {
		t.Fatalf("expected load 75, got %d", snap.LoadPercent)
	}
	if snap.UsedBytes() != 12000000*1024 {
		t.Fatalf("unexpected used: %d", snap.UsedBytes())
	}
	if !snap.TakenAt.Equal(fixed) {
		t.Fatalf("unexpected timestamp: %s", snap.TakenAt)
	}
}

func TestProcSamplerApproximatesWithoutMemAvailable(t *testing.T) {
	content := strings.Replace(sampleMeminfo, "MemAvailable:    4000000 kB\n", "", 1)
	sampler := NewProcSampler(writeMeminfo(t, content))

	snap, err := sampler.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	want := uint64(1000000+200000+3000000) * 1024
	if snap.AvailableBytes != want {
		t.Fatalf("expected available %d, got %d", want, snap.AvailableBytes)
	}
}

func TestProcSamplerFallsBackToSysinfo(t *testing.T) {
	sampler := NewProcSampler(t.TempDir())
	sampler.sysinfo = func() (uint64, uint64, error) { return 1000, 250, nil }

	snap, err := sampler.Sample(context.Background())
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if snap.TotalBytes != 1000 || snap.AvailableBytes != 250 || snap.LoadPercent != 75 {
		t.Fatalf("unexpected fallback snapshot: %+v", snap)
	}
}

func TestProcSamplerReportsUnavailable(t *testing.T) {
	sampler := NewProcSampler(t.TempDir())
	sampler.sysinfo = func() (uint64, uint64, error) { return 0, 0, errors.New("boom") }

	if _, err := sampler.Sample(context.Background()); !errors.Is(err, ErrNoMemInfo) {
		t.Fatalf("expected ErrNoMemInfo, got %v", err)
	}
}

func TestParseMeminfoRequiresTotal(t *testing.T) {
	if _, _, err := parseMeminfo(strings.NewReader("MemFree: 10 kB\n")); err == nil {
		t.Fatal("expected error when MemTotal is missing")
	}
}

func TestNewSnapshotClampsAvailable(t *testing.T) {
	snap := NewSnapshot(100, 150, time.Time{})
	if snap.AvailableBytes != 100 || snap.LoadPercent != 0 || snap.UsedBytes() != 0 {
		t.Fatalf("unexpected clamped snapshot: %+v", snap)
	}
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{FormatMegabytes(1294467072), "1,234.5 MB"},
		{FormatMegabytes(-2 * mib), "-2.0 MB"},
		{FormatBytes(512), "512 B"},
		{FormatBytes(3 * gib / 2), "1.50 GB"},
		{FormatBytes(2048), "2.0 KB"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("got %q want %q", tt.got, tt.want)
		}
	}
}
