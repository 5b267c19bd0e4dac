package database

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds configuration for the source database connection.
type Config struct {
	// Driver is "postgres" (default) or "sqlite".
	Driver string

	// DSN, when set, is passed to the driver as-is and the discrete
	// connection fields below are ignored.
	DSN string

	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// Path is the SQLite database file. ":memory:" opens a private in-memory
	// database.
	Path string

	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// StoreName returns the human readable name of the configured store, used in
// health messages.
func (c Config) StoreName() string {
	if c.DriverName() == DriverSQLite {
		return "SQLite"
	}
	return "PostgreSQL"
}

// DriverName returns the configured driver, defaulting to postgres.
func (c Config) DriverName() string {
	if c.Driver == "" {
		return DriverPostgres
	}
	return c.Driver
}

func (c Config) dialector() (gorm.Dialector, error) {
	switch c.DriverName() {
	case DriverPostgres:
		dsn := c.DSN
		if dsn == "" {
			sslMode := c.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				c.Host, c.Port, c.User, c.Password, c.DBName, sslMode)
		}
		return postgres.Open(dsn), nil
	case DriverSQLite:
		path := c.DSN
		if path == "" {
			path = c.Path
		}
		if path == "" {
			return nil, fmt.Errorf("sqlite path required")
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

type poolSettings struct {
	maxIdleConns    int
	maxOpenConns    int
	connMaxLifetime time.Duration
	connMaxIdleTime time.Duration
}

func (c Config) poolSettings() poolSettings {
	p := poolSettings{
		maxIdleConns:    c.MaxIdleConns,
		maxOpenConns:    c.MaxOpenConns,
		connMaxLifetime: c.ConnMaxLifetime,
		connMaxIdleTime: c.ConnMaxIdleTime,
	}
	if p.maxIdleConns == 0 {
		p.maxIdleConns = 10
	}
	if p.maxOpenConns == 0 {
		p.maxOpenConns = 25
	}
	if p.connMaxLifetime == 0 {
		p.connMaxLifetime = 5 * time.Minute
	}
	if p.connMaxIdleTime == 0 {
		p.connMaxIdleTime = 10 * time.Minute
	}

	// Every SQLite connection to ":memory:" is a separate database, so the
	// single connection is never closed for age or idleness.
	if c.DriverName() == DriverSQLite {
		p.maxIdleConns, p.maxOpenConns = 1, 1
		p.connMaxLifetime, p.connMaxIdleTime = 0, 0
	}
	return p
}

// Connect opens the source database and configures its connection pool.
func Connect(cfg Config, log hclog.Logger) (*gorm.DB, error) {
	dialector, err := cfg.dialector()
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{}
	if log != nil {
		gormConfig.Logger = NewGormLogger(log.Named("gorm"))
	} else {
		gormConfig.Logger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	pool := cfg.poolSettings()
	sqlDB.SetMaxIdleConns(pool.maxIdleConns)
	sqlDB.SetMaxOpenConns(pool.maxOpenConns)
	sqlDB.SetConnMaxLifetime(pool.connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(pool.connMaxIdleTime)

	if log != nil {
		log.Info("connected to source database",
			"store", cfg.StoreName(),
			"host", cfg.Host,
			"database", cfg.DBName,
			"max_idle_conns", pool.maxIdleConns,
			"max_open_conns", pool.maxOpenConns,
		)
	}

	return db, nil
}

// gormHclogAdapter adapts hclog.Logger to gorm.logger.Interface.
type gormHclogAdapter struct {
	logger        hclog.Logger
	level         logger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger creates a GORM logger that writes through hclog. Queries are
// logged at debug, slow queries at warn.
func NewGormLogger(log hclog.Logger) logger.Interface {
	return &gormHclogAdapter{
		logger:        log,
		level:         logger.Warn,
		slowThreshold: 200 * time.Millisecond,
	}
}

func (g *gormHclogAdapter) LogMode(level logger.LogLevel) logger.Interface {
	return &gormHclogAdapter{
		logger:        g.logger,
		level:         level,
		slowThreshold: g.slowThreshold,
	}
}

func (g *gormHclogAdapter) Info(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Info {
		g.logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (g *gormHclogAdapter) Warn(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Warn {
		g.logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (g *gormHclogAdapter) Error(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= logger.Error {
		g.logger.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs SQL statements and their execution time.
func (g *gormHclogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && g.level >= logger.Error:
		g.logger.Error("database query failed", "error", err, "elapsed", elapsed, "rows", rows, "sql", sql)
	case elapsed > g.slowThreshold && g.level >= logger.Warn:
		g.logger.Warn("slow database query", "elapsed", elapsed, "rows", rows, "sql", sql)
	case g.logger.IsDebug():
		g.logger.Debug("database query", "elapsed", elapsed, "rows", rows, "sql", sql)
	}
}
