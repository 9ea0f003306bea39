// Package memory samples physical memory usage and formats byte amounts for
// presentation.
package memory

import (
	"context"
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Snapshot is a point-in-time view of physical memory.
type Snapshot struct {
	TotalBytes     uint64    `json:"total_bytes"`
	AvailableBytes uint64    `json:"available_bytes"`
	LoadPercent    uint32    `json:"load_percent"`
	TakenAt        time.Time `json:"taken_at"`
}

// UsedBytes returns physical memory in use.
func (s Snapshot) UsedBytes() uint64 {
	if s.AvailableBytes >= s.TotalBytes {
		return 0
	}
	return s.TotalBytes - s.AvailableBytes
}

// Sampler returns fresh memory snapshots.
type Sampler interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(ctx context.Context) (Snapshot, error)

func (f SamplerFunc) Sample(ctx context.Context) (Snapshot, error) { return f(ctx) }

// NewSnapshot derives the load percentage from total and available bytes.
func NewSnapshot(total, available uint64, takenAt time.Time) Snapshot {
	if available > total {
		available = total
	}
	var load uint32
	if total > 0 {
		load = uint32(math.Round(float64(total-available) * 100 / float64(total)))
	}
	return Snapshot{
		TotalBytes:     total,
		AvailableBytes: available,
		LoadPercent:    load,
		TakenAt:        takenAt,
	}
}

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

var printer = message.NewPrinter(language.English)

// FormatMegabytes renders a signed byte delta as megabytes with digit grouping,
// e.g. "1,234.5 MB".
func FormatMegabytes(bytes int64) string {
	return printer.Sprintf("%.1f MB", float64(bytes)/mib)
}

// FormatBytes renders an absolute byte amount with the largest fitting unit.
func FormatBytes(bytes uint64) string {
	switch {
	case bytes >= gib:
		return printer.Sprintf("%.2f GB", float64(bytes)/gib)
	case bytes >= mib:
		return printer.Sprintf("%.1f MB", float64(bytes)/mib)
	case bytes >= kib:
		return printer.Sprintf("%.1f KB", float64(bytes)/kib)
	default:
		return printer.Sprintf("%d B", bytes)
	}
}
