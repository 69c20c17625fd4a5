package pipeline

import (
	"sync"
	"time"

	"github.com/skovlund/netwatch/internal/model"
)

// Mark is a checkpoint candidate attached to a polled event. Once the batch
// containing the entry is durably loaded, the source's cursor may advance to
// the maximum mark in the batch. Listener events carry the zero Mark.
type Mark struct {
	EventAt  time.Time
	Channel  string
	RecordID int64
}

// IsZero reports whether the entry carried no checkpoint candidate.
func (m Mark) IsZero() bool {
	return m.EventAt.IsZero() && m.Channel == "" && m.RecordID == 0
}

// Entry is one buffered event plus its checkpoint candidate.
type Entry struct {
	Event model.NormalizedEvent
	Mark  Mark
}

// Buffer accumulates entries for one source label. Producers append without
// ever blocking on a flush: Snapshot atomically swaps the slice out, so no
// partial drain is visible.
type Buffer struct {
	label string

	mu      sync.Mutex
	entries []Entry
	firstAt time.Time // when the oldest buffered entry arrived
}

// NewBuffer creates an empty buffer for the given source label.
func NewBuffer(label string) *Buffer {
	return &Buffer{label: label}
}

// Label returns the source label this buffer belongs to.
func (b *Buffer) Label() string { return b.label }

// Add appends an event with no checkpoint candidate.
func (b *Buffer) Add(ev model.NormalizedEvent) {
	b.AddMarked(ev, Mark{})
}

// AddMarked appends an event with a checkpoint candidate.
func (b *Buffer) AddMarked(ev model.NormalizedEvent, m Mark) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		b.firstAt = time.Now()
	}
	b.entries = append(b.entries, Entry{Event: ev, Mark: m})
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Age returns how long the oldest buffered entry has been waiting, or zero
// when the buffer is empty.
func (b *Buffer) Age() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) == 0 {
		return 0
	}
	return time.Since(b.firstAt)
}

// Snapshot removes and returns all buffered entries.
func (b *Buffer) Snapshot() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.entries
	b.entries = nil
	return entries
}
