package testsupport

import (
	"context"
	"sync"
	"time"

	"memsweep/internal/memory"
)

// SequenceSampler returns queued snapshots in order, repeating the last one,
// and counts calls.
type SequenceSampler struct {
	mu        sync.Mutex
	snapshots []memory.Snapshot
	err       error
	calls     int
}

// NewSequenceSampler builds snapshots from used-byte values against a fixed
// total.
func NewSequenceSampler(total uint64, used ...uint64) *SequenceSampler {
	s := &SequenceSampler{}
	for _, u := range used {
		s.snapshots = append(s.snapshots, memory.NewSnapshot(total, total-u, time.Time{}))
	}
	return s
}

// Fail makes every subsequent sample return err.
func (s *SequenceSampler) Fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *SequenceSampler) Sample(context.Context) (memory.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return memory.Snapshot{}, s.err
	}
	if len(s.snapshots) == 0 {
		return memory.Snapshot{}, nil
	}
	snap := s.snapshots[0]
	if len(s.snapshots) > 1 {
		s.snapshots = s.snapshots[1:]
	}
	return snap, nil
}

// Calls returns how many samples were taken.
func (s *SequenceSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
