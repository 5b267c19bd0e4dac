// Package watermark tracks how far an index updater has synchronised the
// source table.
package watermark

import (
	"sync"
	"time"
)

// Watermark marks the (last_modified, key) boundary already applied to an
// index. Records are ordered by timestamp first and key second.
type Watermark struct {
	Timestamp time.Time
	Key       string
}

// Zero returns the watermark that precedes every record.
func Zero() Watermark {
	return Watermark{}
}

// Compare returns -1, 0 or +1 depending on whether w sorts before, equal to
// or after o.
func (w Watermark) Compare(o Watermark) int {
	if c := w.Timestamp.Compare(o.Timestamp); c != 0 {
		return c
	}
	switch {
	case w.Key < o.Key:
		return -1
	case w.Key > o.Key:
		return 1
	}
	return 0
}

// Covers reports whether a record at (ts, key) has already been passed by w.
func (w Watermark) Covers(ts time.Time, key string) bool {
	return Watermark{Timestamp: ts, Key: key}.Compare(w) <= 0
}

// Snapshot is a consistent copy of a Tracker's fields.
type Snapshot struct {
	Watermark                Watermark
	Known                    bool
	LastSuccessfulSyncTime   time.Time
	LastUnsuccessfulSyncTime time.Time
}

// Tracker holds the runtime sync state of one updater. Writes come from the
// updater's own sync run; reads may come from any goroutine.
type Tracker struct {
	mu          sync.RWMutex
	watermark   Watermark
	known       bool
	lastSuccess time.Time
	lastFailure time.Time
}

// NewTracker returns a tracker whose watermark is not yet known.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Watermark returns the current watermark and whether it has been set.
func (t *Tracker) Watermark() (Watermark, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.watermark, t.known
}

// Recover sets the watermark from an external source of truth, replacing any
// previous value.
func (t *Tracker) Recover(w Watermark) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watermark = w
	t.known = true
}

// Advance moves the watermark forward to w. It returns false, leaving the
// tracker unchanged, if w sorts before the current watermark.
func (t *Tracker) Advance(w Watermark) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.known && w.Compare(t.watermark) < 0 {
		return false
	}
	t.watermark = w
	t.known = true
	return true
}

// MarkSuccess records the end of a successful run.
func (t *Tracker) MarkSuccess(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSuccess = at
}

// MarkFailure records the end of a failed run.
func (t *Tracker) MarkFailure(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastFailure = at
}

// Snapshot returns all fields read under a single lock.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Snapshot{
		Watermark:                t.watermark,
		Known:                    t.known,
		LastSuccessfulSyncTime:   t.lastSuccess,
		LastUnsuccessfulSyncTime: t.lastFailure,
	}
}
