package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/indexsync/pkg/datefmt"
	"github.com/hashicorp-forge/indexsync/pkg/index"
	"github.com/hashicorp-forge/indexsync/pkg/indexer/updater"
	"github.com/hashicorp-forge/indexsync/pkg/models"
	"github.com/hashicorp-forge/indexsync/pkg/watermark"
)

// SynchroniserConfig configures a Synchroniser.
type SynchroniserConfig struct {
	Engine index.Engine

	// PageSize is the number of source records read per page.
	PageSize int

	// CallTimeout bounds each page read, bulk apply and status recovery.
	// Zero means no timeout.
	CallTimeout time.Duration

	Logger hclog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// RunStats summarises one synchronisation run.
type RunStats struct {
	Pages   int
	Records int
	Actions int
}

// Synchroniser drives one updater from its watermark to the end of the
// source backlog.
type Synchroniser struct {
	engine      index.Engine
	loader      *StatusLoader
	pageSize    int
	callTimeout time.Duration
	logger      hclog.Logger
	now         func() time.Time
}

// NewSynchroniser creates a Synchroniser.
func NewSynchroniser(cfg SynchroniserConfig) (*Synchroniser, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("index engine is required")
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", cfg.PageSize)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Synchroniser{
		engine:      cfg.Engine,
		loader:      NewStatusLoader(cfg.Engine, logger.Named("status-loader")),
		pageSize:    cfg.PageSize,
		callTimeout: cfg.CallTimeout,
		logger:      logger,
		now:         now,
	}, nil
}

// PageSize returns the configured page size.
func (s *Synchroniser) PageSize() int {
	return s.pageSize
}

// Synchronise runs one sync cycle for u. Failures are logged and recorded
// as the updater's last unsuccessful sync time; the watermark is left at the
// last fully applied page.
func (s *Synchroniser) Synchronise(ctx context.Context, u updater.Updater) (RunStats, error) {
	logger := s.logger.With("updater", u.ID(), "index", u.IndexName(), "doc_type", u.DocType())
	tracker := u.Tracker()

	stats, err := s.run(ctx, u, logger)
	if err != nil {
		tracker.MarkFailure(s.now().UTC())
		logger.Error("index update failed",
			"error", err,
			"pages", stats.Pages,
			"records", stats.Records,
		)
		return stats, err
	}

	tracker.MarkSuccess(s.now().UTC())
	if stats.Records > 0 {
		w, _ := tracker.Watermark()
		logger.Info("index updated",
			"pages", stats.Pages,
			"records", stats.Records,
			"actions", stats.Actions,
			"last_title_number", w.Key,
		)
	} else {
		logger.Debug("index up to date")
	}
	return stats, nil
}

func (s *Synchroniser) run(ctx context.Context, u updater.Updater, logger hclog.Logger) (RunStats, error) {
	var stats RunStats
	tracker := u.Tracker()

	if _, known := tracker.Watermark(); !known {
		w, err := s.loadStatus(ctx, u)
		if err != nil {
			return stats, err
		}
		tracker.Recover(w)
	}

	for {
		page, err := s.fetch(ctx, u)
		if err != nil {
			return stats, fmt.Errorf("%w: %w", ErrSourceRead, err)
		}
		if len(page) == 0 {
			return stats, nil
		}
		last := page[len(page)-1]
		next := watermark.Watermark{Timestamp: last.LastModified, Key: last.TitleNumber}
		if current, known := tracker.Watermark(); known && next.Compare(current) <= 0 {
			return stats, fmt.Errorf("%w: page ends at (%s, %q), watermark is at (%s, %q)",
				ErrWatermarkRegression,
				datefmt.FormatMillis(next.Timestamp), next.Key,
				datefmt.FormatMillis(current.Timestamp), current.Key)
		}

		stats.Pages++
		stats.Records += len(page)

		actions, err := s.prepare(u, page, logger)
		if err != nil {
			return stats, err
		}

		if len(actions) > 0 {
			if err := s.apply(ctx, actions); err != nil {
				return stats, err
			}
			stats.Actions += len(actions)
		}

		tracker.Advance(next)

		if len(page) < s.pageSize {
			return stats, nil
		}
	}
}

func (s *Synchroniser) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout > 0 {
		return context.WithTimeout(ctx, s.callTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Synchroniser) loadStatus(ctx context.Context, u updater.Updater) (watermark.Watermark, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return s.loader.Load(callCtx, u)
}

func (s *Synchroniser) fetch(ctx context.Context, u updater.Updater) ([]models.TitleRegisterData, error) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	return u.GetNextSourceDataPage(callCtx, s.pageSize)
}

func (s *Synchroniser) prepare(u updater.Updater, page []models.TitleRegisterData, logger hclog.Logger) ([]index.Action, error) {
	var actions []index.Action
	for _, record := range page {
		recordActions, err := u.PrepareIndexActions(record)
		if err != nil {
			return nil, err
		}
		if len(recordActions) == 0 {
			logger.Debug("record produced no index actions", "title_number", record.TitleNumber)
			continue
		}
		actions = append(actions, recordActions...)
	}
	return actions, nil
}

func (s *Synchroniser) apply(ctx context.Context, actions []index.Action) error {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()

	result, err := s.engine.Apply(callCtx, actions)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexWrite, err)
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrIndexWrite, err)
	}
	return nil
}
