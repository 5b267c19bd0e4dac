package meilisearch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/iancoleman/strcase"
	"github.com/meilisearch/meilisearch-go"

	"github.com/hashicorp-forge/indexsync/pkg/index"
)

const (
	// primaryKey holds the URL-safe encoding of the document id, since
	// Meilisearch ids only allow [a-zA-Z0-9_-].
	primaryKey = "doc_key"
	// idField keeps the original document id readable in search results.
	idField = "doc_id"

	defaultTaskPollInterval = 50 * time.Millisecond
	errCodeIndexExists      = "index_already_exists"
)

// Adapter implements index.Engine for Meilisearch. Each (index name, doc
// type) pair is a separate Meilisearch index.
type Adapter struct {
	client       meilisearch.ServiceManager
	pollInterval time.Duration
	logger       hclog.Logger
}

// Config contains Meilisearch configuration.
type Config struct {
	Host   string
	APIKey string

	// TaskPollInterval is how often asynchronous tasks are polled.
	TaskPollInterval time.Duration

	Logger hclog.Logger
}

// NewAdapter creates a new Meilisearch engine. It does not contact the
// server; use Health for that.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("meilisearch config required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("meilisearch host required")
	}
	if !strings.HasPrefix(cfg.Host, "http://") && !strings.HasPrefix(cfg.Host, "https://") {
		return nil, fmt.Errorf("meilisearch host must be an http(s) URL, got %q", cfg.Host)
	}

	poll := cfg.TaskPollInterval
	if poll <= 0 {
		poll = defaultTaskPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Adapter{
		client:       meilisearch.New(cfg.Host, meilisearch.WithAPIKey(cfg.APIKey)),
		pollInterval: poll,
		logger:       logger,
	}, nil
}

// Name returns the engine name.
func (a *Adapter) Name() string {
	return "meilisearch"
}

// IndexUID derives the Meilisearch index uid for (indexName, docType).
func IndexUID(indexName, docType string) string {
	snake := strcase.ToSnake(indexName + "_" + docType)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, snake)
}

// DocumentKey encodes a document id into a valid Meilisearch primary key.
func DocumentKey(id string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(id))
}

// EnsureMapping creates the index and makes every mapped field sortable and
// every indexed field searchable.
func (a *Adapter) EnsureMapping(ctx context.Context, indexName, docType string, m index.Mapping) error {
	uid := IndexUID(indexName, docType)

	info, err := a.client.CreateIndexWithContext(ctx, &meilisearch.IndexConfig{
		Uid:        uid,
		PrimaryKey: primaryKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", uid, err)
	}
	task, err := a.client.WaitForTaskWithContext(ctx, info.TaskUID, a.pollInterval)
	if err != nil {
		return fmt.Errorf("failed waiting for index %s creation: %w", uid, err)
	}
	if task.Status == meilisearch.TaskStatusFailed && task.Error.Code != errCodeIndexExists {
		return fmt.Errorf("failed to create index %s: %s", uid, task.Error.Message)
	}

	idx := a.client.Index(uid)

	sortable := m.FieldNames()
	info, err = idx.UpdateSortableAttributesWithContext(ctx, &sortable)
	if err != nil {
		return fmt.Errorf("failed to update sortable attributes of %s: %w", uid, err)
	}
	if err := a.waitSucceeded(ctx, info.TaskUID); err != nil {
		return fmt.Errorf("failed to update sortable attributes of %s: %w", uid, err)
	}

	searchable := m.Searchable()
	if len(searchable) > 0 {
		info, err = idx.UpdateSearchableAttributesWithContext(ctx, &searchable)
		if err != nil {
			return fmt.Errorf("failed to update searchable attributes of %s: %w", uid, err)
		}
		if err := a.waitSucceeded(ctx, info.TaskUID); err != nil {
			return fmt.Errorf("failed to update searchable attributes of %s: %w", uid, err)
		}
	}

	a.logger.Info("index ready", "index", indexName, "doc_type", docType, "uid", uid)
	return nil
}

func (a *Adapter) waitSucceeded(ctx context.Context, taskUID int64) error {
	task, err := a.client.WaitForTaskWithContext(ctx, taskUID, a.pollInterval)
	if err != nil {
		return err
	}
	if task.Status != meilisearch.TaskStatusSucceeded {
		return fmt.Errorf("task %d %s: %s", taskUID, task.Status, task.Error.Message)
	}
	return nil
}

// LatestDocument returns the document that sorts last by sortFields.
func (a *Adapter) LatestDocument(ctx context.Context, indexName, docType string, sortFields ...string) (map[string]any, error) {
	uid := IndexUID(indexName, docType)

	sort := make([]string, 0, len(sortFields))
	for _, f := range sortFields {
		sort = append(sort, f+":desc")
	}

	resp, err := a.client.Index(uid).SearchWithContext(ctx, "", &meilisearch.SearchRequest{
		Limit: 1,
		Sort:  sort,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search index %s: %w", uid, err)
	}

	hits, err := decodeHits(resp.Hits)
	if err != nil {
		return nil, fmt.Errorf("failed to decode hits from %s: %w", uid, err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	doc := hits[0]
	delete(doc, primaryKey)
	delete(doc, idField)
	return doc, nil
}

// decodeHits converts search hits of any client representation into plain
// maps.
func decodeHits(hits any) ([]map[string]any, error) {
	raw, err := json.Marshal(hits)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health checks that the server reports itself available.
func (a *Adapter) Health(ctx context.Context) error {
	health, err := a.client.HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("meilisearch health check failed: %w", err)
	}
	if health.Status != "available" {
		return fmt.Errorf("unexpected meilisearch status: %s", health.Status)
	}
	return nil
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (a *Adapter) Close() error {
	return nil
}
