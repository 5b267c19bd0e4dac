// Package algolia implements index.Engine on hosted Algolia indexes.
package algolia

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/algolia/algoliasearch-client-go/v3/algolia/opt"
	"github.com/algolia/algoliasearch-client-go/v3/algolia/search"
	"github.com/algolia/algoliasearch-client-go/v3/algolia/transport"
	"github.com/hashicorp/go-hclog"
	"github.com/iancoleman/strcase"

	"github.com/hashicorp-forge/indexsync/pkg/index"
)

const objectIDField = "objectID"

// Adapter implements index.Engine for Algolia. Each (index name, doc type)
// pair is a separate Algolia index.
type Adapter struct {
	client *search.Client
	logger hclog.Logger

	mu sync.Mutex
	// ranking is the custom ranking last applied to each index name.
	ranking map[string][]string
}

// Config contains Algolia configuration.
type Config struct {
	AppID       string
	WriteAPIKey string

	// Hosts overrides the default Algolia hosts.
	Hosts []string

	// Requester overrides the HTTP transport.
	Requester transport.Requester

	Logger hclog.Logger
}

// NewAdapter creates a new Algolia engine.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("algolia config required")
	}
	if cfg.AppID == "" {
		return nil, fmt.Errorf("algolia app ID required")
	}
	if cfg.WriteAPIKey == "" {
		return nil, fmt.Errorf("algolia write API key required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Adapter{
		client: search.NewClientWithConfig(search.Configuration{
			AppID:     cfg.AppID,
			APIKey:    cfg.WriteAPIKey,
			Hosts:     cfg.Hosts,
			Requester: cfg.Requester,
		}),
		logger:  logger,
		ranking: make(map[string][]string),
	}, nil
}

// Name returns the engine name.
func (a *Adapter) Name() string {
	return "algolia"
}

// IndexName derives the Algolia index name for (indexName, docType).
func IndexName(indexName, docType string) string {
	return strcase.ToSnake(indexName + "_" + docType)
}

// EnsureMapping makes every indexed field searchable and every mapped field
// filterable. Algolia creates the index on the first write.
func (a *Adapter) EnsureMapping(ctx context.Context, indexName, docType string, m index.Mapping) error {
	name := IndexName(indexName, docType)

	settings := search.Settings{
		AttributesForFaceting: opt.AttributesForFaceting(m.FieldNames()...),
	}
	if searchable := m.Searchable(); len(searchable) > 0 {
		settings.SearchableAttributes = opt.SearchableAttributes(searchable...)
	}

	res, err := a.client.InitIndex(name).SetSettings(settings, ctx)
	if err != nil {
		return fmt.Errorf("failed to update settings of %s: %w", name, err)
	}
	if err := res.Wait(ctx); err != nil {
		return fmt.Errorf("failed waiting for settings of %s: %w", name, err)
	}

	a.logger.Info("index ready", "index", indexName, "doc_type", docType, "algolia_index", name)
	return nil
}

// Apply submits all actions as one ordered multi-index batch. Upserts are
// partial updates that create missing objects. Algolia accepts or rejects a
// batch as a whole, so there are no per-action failures.
func (a *Adapter) Apply(ctx context.Context, actions []index.Action) (*index.BulkResult, error) {
	result := &index.BulkResult{}
	if len(actions) == 0 {
		return result, nil
	}

	ops := make([]search.BatchOperationIndexed, 0, len(actions))
	for i, action := range actions {
		name := IndexName(action.IndexName, action.DocType)
		switch action.Type {
		case index.ActionUpsert:
			body := make(map[string]any, len(action.Document)+1)
			for k, v := range action.Document {
				body[k] = v
			}
			body[objectIDField] = action.ID
			ops = append(ops, search.BatchOperationIndexed{
				IndexName:      name,
				BatchOperation: search.BatchOperation{Action: search.PartialUpdateObject, Body: body},
			})
		case index.ActionDelete:
			ops = append(ops, search.BatchOperationIndexed{
				IndexName: name,
				BatchOperation: search.BatchOperation{
					Action: search.DeleteObject,
					Body:   map[string]string{objectIDField: action.ID},
				},
			})
		default:
			result.Errors = append(result.Errors, index.ActionError{
				Index:  i,
				Type:   action.Type,
				ID:     action.ID,
				Reason: fmt.Sprintf("unsupported action type %q", action.Type),
			})
		}
	}
	if len(ops) == 0 {
		return result, nil
	}

	res, err := a.client.MultipleBatch(ops, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to submit batch of %d action(s): %w", len(ops), err)
	}
	if err := res.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed waiting for batch of %d action(s): %w", len(ops), err)
	}

	result.Succeeded = len(ops)
	return result, nil
}

// LatestDocument returns the document ranked first when the index is ranked
// by sortFields, all descending. The custom ranking is applied to the index
// the first time it is needed.
func (a *Adapter) LatestDocument(ctx context.Context, indexName, docType string, sortFields ...string) (map[string]any, error) {
	name := IndexName(indexName, docType)
	idx := a.client.InitIndex(name)

	if err := a.ensureRanking(ctx, idx, name, sortFields); err != nil {
		return nil, err
	}

	res, err := idx.Search("", opt.HitsPerPage(1), ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search index %s: %w", name, err)
	}
	if len(res.Hits) == 0 {
		return nil, nil
	}

	doc := make(map[string]any, len(res.Hits[0]))
	for k, v := range res.Hits[0] {
		if k == objectIDField || strings.HasPrefix(k, "_") {
			continue
		}
		doc[k] = v
	}
	return doc, nil
}

func (a *Adapter) ensureRanking(ctx context.Context, idx *search.Index, name string, sortFields []string) error {
	ranking := make([]string, 0, len(sortFields))
	for _, f := range sortFields {
		ranking = append(ranking, "desc("+f+")")
	}

	a.mu.Lock()
	current := a.ranking[name]
	a.mu.Unlock()
	if slices.Equal(current, ranking) {
		return nil
	}

	res, err := idx.SetSettings(search.Settings{CustomRanking: opt.CustomRanking(ranking...)}, ctx)
	if err != nil {
		return fmt.Errorf("failed to update ranking of %s: %w", name, err)
	}
	if err := res.Wait(ctx); err != nil {
		return fmt.Errorf("failed waiting for ranking of %s: %w", name, err)
	}

	a.mu.Lock()
	a.ranking[name] = ranking
	a.mu.Unlock()
	a.logger.Debug("applied custom ranking", "algolia_index", name, "ranking", ranking)
	return nil
}

// Health checks that the application answers an index listing.
func (a *Adapter) Health(ctx context.Context) error {
	if _, err := a.client.ListIndices(ctx); err != nil {
		return fmt.Errorf("algolia health check failed: %w", err)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (a *Adapter) Close() error {
	return nil
}
