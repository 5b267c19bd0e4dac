// Package source reads pages of changed title records from the relational
// store.
package source

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hashicorp-forge/indexsync/pkg/models"
)

// healthProbeTimestamp is far enough in the future that the probe query
// returns no rows while still exercising the page index.
var healthProbeTimestamp = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)

// PageReader fetches ordered pages of source records.
type PageReader interface {
	// GetNextPage returns at most limit records strictly after
	// (afterTimestamp, afterKey), ordered by last_modified then title_number.
	GetNextPage(ctx context.Context, afterKey string, afterTimestamp time.Time, limit int) ([]models.TitleRegisterData, error)

	// Ping performs a lightweight read against the store.
	Ping(ctx context.Context) error

	// Name returns the store name, e.g. "PostgreSQL".
	Name() string
}

// GormPageReader reads pages through GORM.
type GormPageReader struct {
	db   *gorm.DB
	name string
}

// NewGormPageReader returns a PageReader backed by db. name is used in
// health reporting.
func NewGormPageReader(db *gorm.DB, name string) *GormPageReader {
	return &GormPageReader{db: db, name: name}
}

// GetNextPage implements PageReader.
func (r *GormPageReader) GetNextPage(ctx context.Context, afterKey string, afterTimestamp time.Time, limit int) ([]models.TitleRegisterData, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("page limit must be positive, got %d", limit)
	}

	after := afterTimestamp.UTC()

	var records []models.TitleRegisterData
	err := r.db.WithContext(ctx).
		Where("(last_modified = ? AND title_number > ?) OR last_modified > ?", after, afterKey, after).
		Order("last_modified").
		Order("title_number").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query title register data: %w", err)
	}

	return records, nil
}

// Ping implements PageReader.
func (r *GormPageReader) Ping(ctx context.Context) error {
	_, err := r.GetNextPage(ctx, "", healthProbeTimestamp, 1)
	return err
}

// Name implements PageReader.
func (r *GormPageReader) Name() string {
	return r.name
}
