package indexer_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/indexsync/pkg/index"
	"github.com/hashicorp-forge/indexsync/pkg/indexer/updater"
	"github.com/hashicorp-forge/indexsync/pkg/models"
)

// memReader serves pages from an in-memory table using the same predicate
// and ordering as the SQL reader.
type memReader struct {
	mu      sync.Mutex
	records []models.TitleRegisterData
	calls   int
	err     error

	// block, when set, holds every read until it is closed or the call
	// context ends.
	block chan struct{}

	// fixed, when set, is returned for every read regardless of position,
	// like a store whose title number collation differs from byte order.
	fixed []models.TitleRegisterData
}

func newMemReader(records ...models.TitleRegisterData) *memReader {
	sorted := append([]models.TitleRegisterData(nil), records...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].LastModified.Equal(sorted[j].LastModified) {
			return sorted[i].LastModified.Before(sorted[j].LastModified)
		}
		return sorted[i].TitleNumber < sorted[j].TitleNumber
	})
	return &memReader{records: sorted}
}

func (r *memReader) GetNextPage(ctx context.Context, afterKey string, afterTimestamp time.Time, limit int) ([]models.TitleRegisterData, error) {
	r.mu.Lock()
	r.calls++
	block, err, fixed := r.block, r.err, r.fixed
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if fixed != nil {
		return fixed, nil
	}

	var page []models.TitleRegisterData
	for _, rec := range r.records {
		if len(page) == limit {
			break
		}
		ts := rec.LastModified
		if (ts.Equal(afterTimestamp) && rec.TitleNumber > afterKey) || ts.After(afterTimestamp) {
			page = append(page, rec)
		}
	}
	return page, nil
}

func (r *memReader) Ping(ctx context.Context) error { return r.err }
func (r *memReader) Name() string                   { return "memory" }

func (r *memReader) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// fakeEngine records applied actions and returns scripted results.
type fakeEngine struct {
	mu sync.Mutex

	applied   [][]index.Action
	ensured   []index.Target
	ensureErr []error

	// failApplyAt makes the n-th Apply call (1-based) report every action
	// as failed.
	failApplyAt int
	applyErr    error
	panicApply  bool

	latest    map[string]any
	latestErr error
}

func (e *fakeEngine) Name() string { return "fake" }

func (e *fakeEngine) EnsureMapping(ctx context.Context, indexName, docType string, mapping index.Mapping) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ensured = append(e.ensured, index.Target{IndexName: indexName, DocType: docType})
	if len(e.ensureErr) > 0 {
		err := e.ensureErr[0]
		e.ensureErr = e.ensureErr[1:]
		return err
	}
	return nil
}

func (e *fakeEngine) Apply(ctx context.Context, actions []index.Action) (*index.BulkResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.panicApply {
		panic("engine exploded")
	}
	if e.applyErr != nil {
		return nil, e.applyErr
	}

	e.applied = append(e.applied, actions)
	if e.failApplyAt == len(e.applied) {
		result := &index.BulkResult{}
		for i, a := range actions {
			result.Errors = append(result.Errors, index.ActionError{Index: i, Type: a.Type, ID: a.ID, Reason: "rejected"})
		}
		return result, nil
	}
	return &index.BulkResult{Succeeded: len(actions)}, nil
}

func (e *fakeEngine) LatestDocument(ctx context.Context, indexName, docType string, sortFields ...string) (map[string]any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest, e.latestErr
}

func (e *fakeEngine) Health(ctx context.Context) error { return nil }
func (e *fakeEngine) Close() error                     { return nil }

func (e *fakeEngine) Applied() [][]index.Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]index.Action(nil), e.applied...)
}

func (e *fakeEngine) Ensured() []index.Target {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]index.Target(nil), e.ensured...)
}

// lockedBuffer is a bytes.Buffer safe for concurrent log writes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func day(d int) time.Time {
	return time.Date(2015, 4, d, 0, 0, 0, 0, time.UTC)
}

func titleRecord(titleNumber string, modified time.Time, deleted bool) models.TitleRegisterData {
	return models.TitleRegisterData{
		TitleNumber:  titleNumber,
		RegisterData: models.JSON(fmt.Sprintf(`{"address":{"address_string":"%s High Street (SW11 2DR)"}}`, titleNumber)),
		LastModified: modified,
		IsDeleted:    deleted,
	}
}

func newUpdater(t *testing.T, id string, reader *memReader) updater.Updater {
	t.Helper()
	u, err := updater.New(updater.Definition{ID: id, IndexName: "landregistry", DocType: "doc"}, reader)
	require.NoError(t, err)
	return u
}

var errBoom = errors.New("boom")
