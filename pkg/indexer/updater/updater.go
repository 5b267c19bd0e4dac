// Package updater turns source title records into index mutation actions.
// Each index flavour is an Updater registered under a fixed id.
package updater

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp-forge/indexsync/pkg/index"
	"github.com/hashicorp-forge/indexsync/pkg/models"
	"github.com/hashicorp-forge/indexsync/pkg/source"
	"github.com/hashicorp-forge/indexsync/pkg/watermark"
)

var (
	// ErrUnrecognisedUpdater is returned for an updater id with no
	// registered constructor.
	ErrUnrecognisedUpdater = errors.New("unrecognised updater")

	// ErrTransform is returned when a record's payload cannot be decoded.
	ErrTransform = errors.New("failed to transform record")
)

// Updater produces one index projection from the source table.
type Updater interface {
	ID() string
	IndexName() string
	DocType() string

	// Tracker holds the updater's watermark and sync times.
	Tracker() *watermark.Tracker

	// GetNextSourceDataPage reads up to pageSize records after the
	// updater's current watermark.
	GetNextSourceDataPage(ctx context.Context, pageSize int) ([]models.TitleRegisterData, error)

	// PrepareIndexActions returns delete actions for a deleted record and
	// upsert actions otherwise. The result depends only on the record.
	PrepareIndexActions(record models.TitleRegisterData) ([]index.Action, error)

	// GetMapping returns the field mapping the target index needs.
	GetMapping() index.Mapping
}

// Definition is the static configuration of one updater.
type Definition struct {
	ID        string
	IndexName string
	DocType   string
}

// Base carries the identity, tracker and page reader shared by every
// updater flavour.
type Base struct {
	def     Definition
	tracker *watermark.Tracker
	reader  source.PageReader
}

// NewBase returns a Base for def reading from reader.
func NewBase(def Definition, reader source.PageReader) *Base {
	return &Base{
		def:     def,
		tracker: watermark.NewTracker(),
		reader:  reader,
	}
}

func (b *Base) ID() string                  { return b.def.ID }
func (b *Base) IndexName() string           { return b.def.IndexName }
func (b *Base) DocType() string             { return b.def.DocType }
func (b *Base) Tracker() *watermark.Tracker { return b.tracker }

// GetNextSourceDataPage reads the page after the tracked watermark. An
// unknown watermark reads from the beginning.
func (b *Base) GetNextSourceDataPage(ctx context.Context, pageSize int) ([]models.TitleRegisterData, error) {
	w, _ := b.tracker.Watermark()
	return b.reader.GetNextPage(ctx, w.Key, w.Timestamp, pageSize)
}

func (b *Base) upsert(id string, doc map[string]any) index.Action {
	return index.NewUpsertAction(b.def.IndexName, b.def.DocType, id, doc)
}

func (b *Base) delete(id string) index.Action {
	return index.NewDeleteAction(b.def.IndexName, b.def.DocType, id)
}

// Constructor builds an updater flavour around base.
type Constructor func(base *Base) Updater

const (
	AddressV1ID  = "property-by-address-v1-updater"
	PostcodeV1ID = "property-by-postcode-v1-updater"
	PostcodeV2ID = "property-by-postcode-v2-updater"
	PostcodeV3ID = "property-by-postcode-v3-updater"
)

var constructors = map[string]Constructor{
	AddressV1ID:  newAddressV1,
	PostcodeV1ID: newPostcodeV1,
	PostcodeV2ID: newPostcodeV2,
	PostcodeV3ID: newPostcodeV3,
}

// New builds the updater registered under def.ID.
func New(def Definition, reader source.PageReader) (Updater, error) {
	ctor, ok := constructors[def.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnrecognisedUpdater, def.ID)
	}
	if reader == nil {
		return nil, fmt.Errorf("page reader required for updater %q", def.ID)
	}
	return ctor(NewBase(def, reader)), nil
}

// IDs returns the registered updater ids in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(constructors))
	for id := range constructors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MappingFor returns the mapping of the updater registered under id without
// building a page reader.
func MappingFor(id string) (index.Mapping, error) {
	ctor, ok := constructors[id]
	if !ok {
		return index.Mapping{}, fmt.Errorf("%w: %q", ErrUnrecognisedUpdater, id)
	}
	return ctor(NewBase(Definition{ID: id}, nil)).GetMapping(), nil
}
