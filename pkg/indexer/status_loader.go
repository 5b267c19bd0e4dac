package indexer

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/indexsync/pkg/datefmt"
	"github.com/hashicorp-forge/indexsync/pkg/index"
	"github.com/hashicorp-forge/indexsync/pkg/indexer/updater"
	"github.com/hashicorp-forge/indexsync/pkg/watermark"
)

const (
	entryDatetimeField = "entry_datetime"
	titleNumberField   = "title_number"
)

// StatusLoader recovers an updater's watermark from the newest document in
// its index. This is best effort: if the last bulk apply partially failed,
// the newest document may sit past records that were never written.
type StatusLoader struct {
	engine index.Engine
	logger hclog.Logger
}

// NewStatusLoader returns a StatusLoader reading from engine.
func NewStatusLoader(engine index.Engine, logger hclog.Logger) *StatusLoader {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &StatusLoader{engine: engine, logger: logger}
}

// Load returns the watermark implied by the newest document in u's index,
// or the zero watermark when the index is empty.
func (l *StatusLoader) Load(ctx context.Context, u updater.Updater) (watermark.Watermark, error) {
	l.logger.Warn("recovering index update status from the index",
		"updater", u.ID(), "index", u.IndexName(), "doc_type", u.DocType())

	doc, err := l.engine.LatestDocument(ctx, u.IndexName(), u.DocType(), entryDatetimeField, titleNumberField)
	if err != nil {
		return watermark.Watermark{}, l.wrap(u, err)
	}
	if doc == nil {
		l.logger.Info("index is empty, synchronising from the beginning", "updater", u.ID())
		return watermark.Zero(), nil
	}

	entry, _ := doc[entryDatetimeField].(string)
	titleNumber, _ := doc[titleNumberField].(string)
	if entry == "" || titleNumber == "" {
		return watermark.Watermark{}, l.wrap(u, fmt.Errorf("latest document lacks %s or %s", entryDatetimeField, titleNumberField))
	}

	ts, err := datefmt.ParseIndexTimestamp(entry)
	if err != nil {
		return watermark.Watermark{}, l.wrap(u, err)
	}

	w := watermark.Watermark{Timestamp: ts, Key: titleNumber}
	l.logger.Info("recovered index update status",
		"updater", u.ID(),
		"last_title_modification_date", datefmt.FormatMillis(ts),
		"last_title_number", titleNumber,
	)
	return w, nil
}

func (l *StatusLoader) wrap(u updater.Updater, err error) error {
	return fmt.Errorf("%w. Index name: '%s', doc type: '%s': %w", ErrStatusRecovery, u.IndexName(), u.DocType(), err)
}
