package database

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestConnectSQLite(t *testing.T) {
	db, err := Connect(Config{Driver: DriverSQLite, Path: ":memory:"}, nil)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	// In-memory SQLite is pinned to a single connection.
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestConnectSQLiteMemoryOutlivesConnLifetime(t *testing.T) {
	db, err := Connect(Config{
		Driver:          DriverSQLite,
		Path:            ":memory:",
		ConnMaxLifetime: time.Millisecond,
		ConnMaxIdleTime: time.Millisecond,
	}, nil)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Exec("CREATE TABLE marker (id INTEGER)").Error)
	require.NoError(t, db.Exec("INSERT INTO marker (id) VALUES (7)").Error)

	time.Sleep(20 * time.Millisecond)

	var id int
	require.NoError(t, db.Raw("SELECT id FROM marker").Scan(&id).Error)
	assert.Equal(t, 7, id)
	assert.Zero(t, sqlDB.Stats().MaxLifetimeClosed)
	assert.Zero(t, sqlDB.Stats().MaxIdleTimeClosed)
}

func TestPoolSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want poolSettings
	}{
		{
			name: "postgres defaults",
			cfg:  Config{Driver: DriverPostgres},
			want: poolSettings{maxIdleConns: 10, maxOpenConns: 25, connMaxLifetime: 5 * time.Minute, connMaxIdleTime: 10 * time.Minute},
		},
		{
			name: "postgres explicit",
			cfg:  Config{MaxIdleConns: 2, MaxOpenConns: 4, ConnMaxLifetime: time.Minute, ConnMaxIdleTime: time.Second},
			want: poolSettings{maxIdleConns: 2, maxOpenConns: 4, connMaxLifetime: time.Minute, connMaxIdleTime: time.Second},
		},
		{
			name: "sqlite keeps its only connection",
			cfg:  Config{Driver: DriverSQLite, Path: ":memory:", MaxOpenConns: 8, ConnMaxLifetime: time.Minute},
			want: poolSettings{maxIdleConns: 1, maxOpenConns: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.poolSettings())
		})
	}
}

func TestConnectErrors(t *testing.T) {
	_, err := Connect(Config{Driver: "oracle"}, nil)
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = Connect(Config{Driver: DriverSQLite}, nil)
	assert.ErrorContains(t, err, "sqlite path required")
}

func TestStoreName(t *testing.T) {
	assert.Equal(t, "PostgreSQL", Config{}.StoreName())
	assert.Equal(t, "PostgreSQL", Config{Driver: DriverPostgres}.StoreName())
	assert.Equal(t, "SQLite", Config{Driver: DriverSQLite}.StoreName())
}

func TestGormLoggerTrace(t *testing.T) {
	var buf bytes.Buffer
	log := hclog.New(&hclog.LoggerOptions{Output: &buf, Level: hclog.Debug})
	gl := NewGormLogger(log)

	fc := func() (string, int64) { return "SELECT 1", 1 }

	gl.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	assert.Contains(t, buf.String(), "database query failed")

	buf.Reset()
	gl.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
	assert.Contains(t, buf.String(), "slow database query")

	buf.Reset()
	gl.LogMode(logger.Silent).Trace(context.Background(), time.Now(), fc, errors.New("boom"))
	assert.Empty(t, buf.String())
}
