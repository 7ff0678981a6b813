// Package history keeps a bounded, time-ordered record of profit reports.
package history

import (
	"slices"
	"sync"

	"arbtracker/internal/model"
)

// DefaultCapacity is the number of reports kept when no capacity is given.
const DefaultCapacity = 1000

// Buffer holds reports ascending by capture time, deduplicated on the capture time.
// Once full, the oldest report is evicted. It is safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	entries  []model.ProfitReport
}

// NewBuffer creates a Buffer. A non-positive capacity selects DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		entries:  make([]model.ProfitReport, 0, capacity+1),
	}
}

// Append inserts report in capture-time order and reports whether it is now held. It returns
// false, leaving the buffer unchanged, when a report with the same capture time is already held
// or when the buffer is full and report is older than every entry. Otherwise, when the buffer
// overflows, the oldest entry is dropped.
func (b *Buffer) Append(report model.ProfitReport) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	i, found := slices.BinarySearchFunc(b.entries, report, func(e, target model.ProfitReport) int {
		return e.CapturedAt.Compare(target.CapturedAt)
	})
	if found || (i == 0 && len(b.entries) >= b.capacity) {
		return false
	}
	b.entries = slices.Insert(b.entries, i, report)
	if len(b.entries) > b.capacity {
		b.entries = slices.Delete(b.entries, 0, len(b.entries)-b.capacity)
	}
	return true
}

// Snapshot returns a copy of all reports, oldest first.
func (b *Buffer) Snapshot() []model.ProfitReport {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.entries)
}

// Latest returns the newest report.
func (b *Buffer) Latest() (model.ProfitReport, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.entries) == 0 {
		return model.ProfitReport{}, false
	}
	return b.entries[len(b.entries)-1], true
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
