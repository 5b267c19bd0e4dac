package base

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/hashicorp-forge/indexsync/internal/config"
	"github.com/hashicorp-forge/indexsync/pkg/database"
	"github.com/hashicorp-forge/indexsync/pkg/index"
	algoliaadapter "github.com/hashicorp-forge/indexsync/pkg/index/adapters/algolia"
	bleveadapter "github.com/hashicorp-forge/indexsync/pkg/index/adapters/bleve"
	meilisearchadapter "github.com/hashicorp-forge/indexsync/pkg/index/adapters/meilisearch"
	"github.com/hashicorp-forge/indexsync/pkg/indexer"
	"github.com/hashicorp-forge/indexsync/pkg/indexer/updater"
	"github.com/hashicorp-forge/indexsync/pkg/source"
)

// connectDatabase opens the source database. Tests replace it to observe
// the connection.
var connectDatabase = database.Connect

// Runtime holds the long-lived components built from a config.
type Runtime struct {
	DB        *gorm.DB
	Reader    source.PageReader
	Engine    index.Engine
	Updaters  []updater.Updater
	Scheduler *indexer.Scheduler
}

// NewRuntime connects to the source database and search engine and builds
// the updaters and scheduler. It does not ensure index mappings.
func NewRuntime(cfg *config.Config, log hclog.Logger) (*Runtime, error) {
	defs, err := cfg.Definitions()
	if err != nil {
		return nil, fmt.Errorf("error creating index updaters: %w", err)
	}

	engine, err := NewEngine(cfg, log)
	if err != nil {
		return nil, err
	}

	dbCfg := cfg.DatabaseConfig()
	db, err := connectDatabase(dbCfg, log)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("error connecting to source database: %w", err)
	}

	rt := &Runtime{
		DB:     db,
		Reader: source.NewGormPageReader(db, dbCfg.StoreName()),
		Engine: engine,
	}
	if err := rt.build(cfg, defs, log); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// build creates the updaters and scheduler on an already connected runtime.
func (r *Runtime) build(cfg *config.Config, defs []updater.Definition, log hclog.Logger) error {
	r.Updaters = make([]updater.Updater, 0, len(defs))
	for _, def := range defs {
		u, err := updater.New(def, r.Reader)
		if err != nil {
			return err
		}
		log.Info("created index updater", "updater", def.ID, "index", def.IndexName, "doc_type", def.DocType)
		r.Updaters = append(r.Updaters, u)
	}

	sync, err := indexer.NewSynchroniser(indexer.SynchroniserConfig{
		Engine:      r.Engine,
		PageSize:    cfg.PageSize,
		CallTimeout: cfg.CallTimeoutDuration(),
		Logger:      log.Named("synchroniser"),
	})
	if err != nil {
		return err
	}

	r.Scheduler, err = indexer.NewScheduler(
		indexer.WithLogger(log.Named("scheduler")),
		indexer.WithEngine(r.Engine),
		indexer.WithSynchroniser(sync),
		indexer.WithUpdaters(r.Updaters...),
		indexer.WithPollingInterval(cfg.PollingInterval()),
	)
	return err
}

// NewEngine creates the search engine selected by the providers block.
func NewEngine(cfg *config.Config, log hclog.Logger) (index.Engine, error) {
	switch cfg.Providers.Search {
	case config.SearchProviderBleve:
		engine, err := bleveadapter.NewAdapter(&bleveadapter.Config{
			IndexPath: cfg.Bleve.IndexPath,
			Logger:    log.Named("bleve"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize bleve adapter: %w", err)
		}
		log.Info("initialized search provider", "provider", "bleve", "index_path", cfg.Bleve.IndexPath)
		return engine, nil

	case config.SearchProviderMeilisearch:
		engine, err := meilisearchadapter.NewAdapter(&meilisearchadapter.Config{
			Host:   cfg.Meilisearch.Host,
			APIKey: cfg.Meilisearch.APIKey,
			Logger: log.Named("meilisearch"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize meilisearch adapter: %w", err)
		}
		log.Info("initialized search provider", "provider", "meilisearch", "host", cfg.Meilisearch.Host)
		return engine, nil

	case config.SearchProviderAlgolia:
		engine, err := algoliaadapter.NewAdapter(&algoliaadapter.Config{
			AppID:       cfg.Algolia.AppID,
			WriteAPIKey: cfg.Algolia.WriteAPIKey,
			Logger:      log.Named("algolia"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize algolia adapter: %w", err)
		}
		log.Info("initialized search provider", "provider", "algolia", "app_id", cfg.Algolia.AppID)
		return engine, nil

	default:
		return nil, fmt.Errorf("%w: unsupported search provider %q", config.ErrConfiguration, cfg.Providers.Search)
	}
}

// Close releases the engine and database connections.
func (r *Runtime) Close() error {
	var result *multierror.Error
	if err := r.Engine.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if sqlDB, err := r.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
