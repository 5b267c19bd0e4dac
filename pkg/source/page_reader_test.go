package source

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hashicorp-forge/indexsync/pkg/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.TitleRegisterData{}))
	return db
}

func day(d int) time.Time {
	return time.Date(2015, 4, d, 0, 0, 0, 0, time.UTC)
}

func seed(t *testing.T, db *gorm.DB, rows ...models.TitleRegisterData) {
	t.Helper()
	for i := range rows {
		if rows[i].RegisterData == nil {
			rows[i].RegisterData = models.JSON(`{}`)
		}
		require.NoError(t, db.Create(&rows[i]).Error)
	}
}

func keys(records []models.TitleRegisterData) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.TitleNumber)
	}
	return out
}

func TestGetNextPageOrdering(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db,
		models.TitleRegisterData{TitleNumber: "T3", LastModified: day(2)},
		models.TitleRegisterData{TitleNumber: "T1", LastModified: day(1)},
		models.TitleRegisterData{TitleNumber: "T2", LastModified: day(2)},
		models.TitleRegisterData{TitleNumber: "T0", LastModified: day(3)},
	)

	r := NewGormPageReader(db, "SQLite")
	got, err := r.GetNextPage(context.Background(), "", time.Time{}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2", "T3", "T0"}, keys(got))
}

func TestGetNextPagePredicate(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db,
		models.TitleRegisterData{TitleNumber: "A", LastModified: day(1)},
		models.TitleRegisterData{TitleNumber: "B", LastModified: day(2)},
		models.TitleRegisterData{TitleNumber: "C", LastModified: day(2)},
		models.TitleRegisterData{TitleNumber: "D", LastModified: day(2)},
		models.TitleRegisterData{TitleNumber: "AA", LastModified: day(3)},
	)
	r := NewGormPageReader(db, "SQLite")

	got, err := r.GetNextPage(context.Background(), "C", day(2), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "AA"}, keys(got))

	// Nothing returned sorts at or before the watermark.
	for _, rec := range got {
		before := rec.LastModified.Before(day(2))
		tieNotAfter := rec.LastModified.Equal(day(2)) && rec.TitleNumber <= "C"
		assert.False(t, before || tieNotAfter, "record %s re-returned", rec.TitleNumber)
	}
}

func TestGetNextPageLimitAndPaging(t *testing.T) {
	db := setupTestDB(t)
	for i := 0; i < 7; i++ {
		seed(t, db, models.TitleRegisterData{
			TitleNumber:  fmt.Sprintf("T%02d", i),
			LastModified: day(1 + i/3),
		})
	}
	r := NewGormPageReader(db, "SQLite")
	ctx := context.Background()

	var (
		seen     []string
		afterKey string
		afterTS  time.Time
	)
	for {
		page, err := r.GetNextPage(ctx, afterKey, afterTS, 3)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(page), 3)
		if len(page) == 0 {
			break
		}
		seen = append(seen, keys(page)...)
		last := page[len(page)-1]
		afterKey, afterTS = last.TitleNumber, last.LastModified
	}

	assert.Equal(t, []string{"T00", "T01", "T02", "T03", "T04", "T05", "T06"}, seen)
}

func TestGetNextPageInvalidLimit(t *testing.T) {
	r := NewGormPageReader(setupTestDB(t), "SQLite")
	_, err := r.GetNextPage(context.Background(), "", time.Time{}, 0)
	assert.Error(t, err)
}

func TestPing(t *testing.T) {
	db := setupTestDB(t)
	seed(t, db, models.TitleRegisterData{TitleNumber: "T1", LastModified: day(1)})
	r := NewGormPageReader(db, "SQLite")

	require.NoError(t, r.Ping(context.Background()))
	assert.Equal(t, "SQLite", r.Name())

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	assert.Error(t, r.Ping(context.Background()))
}
