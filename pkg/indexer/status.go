package indexer

import (
	"time"

	"github.com/hashicorp-forge/indexsync/pkg/watermark"
)

// StatusReporter provides a read-only view of sync progress.
type StatusReporter interface {
	Snapshot() StatusSnapshot
}

// StatusSnapshot combines the runtime state of every updater with the
// polling interval.
type StatusSnapshot struct {
	PollingInterval time.Duration
	Updaters        []UpdaterStatus
}

// UpdaterStatus is the state of one updater at snapshot time.
type UpdaterStatus struct {
	ID        string
	IndexName string
	DocType   string
	IsBusy    bool
	Progress  watermark.Snapshot
}

// Snapshot implements StatusReporter. Updaters are listed in dispatch order.
func (s *Scheduler) Snapshot() StatusSnapshot {
	s.mu.Lock()
	busy := make(map[string]bool, len(s.busy))
	for id, b := range s.busy {
		busy[id] = b
	}
	s.mu.Unlock()

	statuses := make([]UpdaterStatus, 0, len(s.updaters))
	for _, u := range s.updaters {
		statuses = append(statuses, UpdaterStatus{
			ID:        u.ID(),
			IndexName: u.IndexName(),
			DocType:   u.DocType(),
			IsBusy:    busy[u.ID()],
			Progress:  u.Tracker().Snapshot(),
		})
	}

	return StatusSnapshot{
		PollingInterval: s.pollingInterval,
		Updaters:        statuses,
	}
}
