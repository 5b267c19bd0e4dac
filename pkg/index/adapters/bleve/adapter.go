package bleve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/iancoleman/strcase"

	"github.com/hashicorp-forge/indexsync/pkg/index"
)

const analyzerStandard = "standard"

// Adapter implements index.Engine on embedded Bleve indexes, one per
// (index name, doc type) pair.
type Adapter struct {
	basePath string
	inMemory bool
	logger   hclog.Logger

	mu      sync.RWMutex
	indexes map[index.Target]bleve.Index
	closed  bool
}

// Config contains Bleve configuration.
type Config struct {
	// IndexPath is the base directory; each index lives at
	// <IndexPath>/<index_name>/<doc_type>.bleve.
	IndexPath string

	// InMemory keeps all indexes in memory and ignores IndexPath.
	InMemory bool

	Logger hclog.Logger
}

// NewAdapter creates a new Bleve engine.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bleve config required")
	}
	if !cfg.InMemory && cfg.IndexPath == "" {
		return nil, fmt.Errorf("bleve index path required")
	}

	if !cfg.InMemory {
		if err := os.MkdirAll(cfg.IndexPath, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Adapter{
		basePath: cfg.IndexPath,
		inMemory: cfg.InMemory,
		logger:   logger,
		indexes:  make(map[index.Target]bleve.Index),
	}, nil
}

// Name returns the engine name.
func (a *Adapter) Name() string {
	return "bleve"
}

func (a *Adapter) indexPath(t index.Target) string {
	return filepath.Join(a.basePath, strcase.ToSnake(t.IndexName), strcase.ToSnake(t.DocType)+".bleve")
}

// EnsureMapping opens the index for (indexName, docType), creating it with
// m when it does not exist yet. An existing index keeps its stored mapping.
func (a *Adapter) EnsureMapping(ctx context.Context, indexName, docType string, m index.Mapping) error {
	target := index.Target{IndexName: indexName, DocType: docType}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errAdapterClosed
	}
	if _, ok := a.indexes[target]; ok {
		return nil
	}

	indexMapping := buildIndexMapping(m)

	var (
		idx bleve.Index
		err error
	)
	if a.inMemory {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		path := a.indexPath(target)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create index directory: %w", err)
		}
		idx, err = openOrCreateIndex(path, indexMapping)
	}
	if err != nil {
		return fmt.Errorf("failed to open index %s: %w", target, err)
	}

	a.indexes[target] = idx
	a.logger.Info("index ready", "index", indexName, "doc_type", docType, "in_memory", a.inMemory)
	return nil
}

// openOrCreateIndex opens an existing Bleve index or creates a new one.
func openOrCreateIndex(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		return bleve.New(path, indexMapping)
	}
	return idx, err
}

// buildIndexMapping translates an index.Mapping into a Bleve mapping. Every
// field is stored so upserts can merge into the existing document. Fields
// declared with index "no" are still indexed because Bleve can only sort on
// indexed fields, but they are left out of the composite _all field.
func buildIndexMapping(m index.Mapping) mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	for _, name := range m.FieldNames() {
		field := m.Properties[name]

		var fm *mapping.FieldMapping
		switch field.Type {
		case index.FieldInteger:
			fm = bleve.NewNumericFieldMapping()
		case index.FieldString:
			if field.Index == index.IndexAnalyzed {
				fm = bleve.NewTextFieldMapping()
				fm.Analyzer = analyzerStandard
			} else {
				fm = bleve.NewKeywordFieldMapping()
			}
		default:
			// Dates are written as fixed width UTC strings, so keyword order
			// is chronological order.
			fm = bleve.NewKeywordFieldMapping()
		}

		fm.Store = true
		fm.Index = true
		fm.DocValues = true
		fm.IncludeInAll = field.Index != index.IndexNo

		docMapping.AddFieldMappingsAt(name, fm)
	}

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = analyzerStandard

	return indexMapping
}

func (a *Adapter) lookup(t index.Target) (bleve.Index, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return nil, errAdapterClosed
	}
	idx, ok := a.indexes[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", index.ErrIndexNotPrepared, t)
	}
	return idx, nil
}

var errAdapterClosed = errors.New("bleve adapter closed")

// Health checks that every open index answers a document count.
func (a *Adapter) Health(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return errAdapterClosed
	}

	for target, idx := range a.indexes {
		if _, err := idx.DocCount(); err != nil {
			return fmt.Errorf("index %s unhealthy: %w", target, err)
		}
	}
	return nil
}

// Close closes all Bleve indexes.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	var result *multierror.Error
	for target, idx := range a.indexes {
		if err := idx.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close index %s: %w", target, err))
		}
	}
	a.indexes = nil

	return result.ErrorOrNil()
}
