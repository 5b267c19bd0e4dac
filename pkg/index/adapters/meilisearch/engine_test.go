package meilisearch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/indexsync/pkg/index"
)

var testMapping = index.Mapping{Properties: map[string]index.Field{
	"title_number":   {Type: index.FieldString, Index: index.IndexNotAnalyzed},
	"entry_datetime": {Type: index.FieldDate, Index: index.IndexNo},
	"address_string": {Type: index.FieldString, Index: index.IndexAnalyzed},
}}

func decodeBody[T any](t *testing.T, req recordedRequest) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(req.Body, &v), "body of %s", req)
	return v
}

func TestEnsureMapping(t *testing.T) {
	f, a := newFakeServer(t)
	uid := IndexUID("landregistry", "property_by_address")

	require.NoError(t, a.EnsureMapping(context.Background(), "landregistry", "property_by_address", testMapping))

	reqs := f.Requests()
	require.Len(t, reqs, 3)

	assert.Equal(t, "POST /indexes", reqs[0].String())
	create := decodeBody[map[string]string](t, reqs[0])
	assert.Equal(t, uid, create["uid"])
	assert.Equal(t, primaryKey, create["primaryKey"])

	assert.Equal(t, "PUT /indexes/"+uid+"/settings/sortable-attributes", reqs[1].String())
	assert.Equal(t, []string{"address_string", "entry_datetime", "title_number"}, decodeBody[[]string](t, reqs[1]))

	assert.Equal(t, "PUT /indexes/"+uid+"/settings/searchable-attributes", reqs[2].String())
	assert.Equal(t, []string{"address_string", "title_number"}, decodeBody[[]string](t, reqs[2]))
}

func TestEnsureMappingExistingIndex(t *testing.T) {
	f, a := newFakeServer(t)
	f.failTask["POST /indexes"] = taskError{Code: errCodeIndexExists, Message: "index already exists"}

	require.NoError(t, a.EnsureMapping(context.Background(), "landregistry", "doc", testMapping))
	assert.Len(t, f.Requests(), 3)
}

func TestEnsureMappingFailures(t *testing.T) {
	uid := IndexUID("landregistry", "doc")

	tests := []struct {
		name     string
		failTask map[string]taskError
		reject   map[string]int
		wantErr  string
	}{
		{
			name:     "index creation task fails",
			failTask: map[string]taskError{"POST /indexes": {Code: "invalid_index_uid", Message: "bad uid"}},
			wantErr:  "bad uid",
		},
		{
			name:    "index creation rejected",
			reject:  map[string]int{"POST /indexes": http.StatusBadRequest},
			wantErr: "failed to create index",
		},
		{
			name: "sortable attributes task fails",
			failTask: map[string]taskError{
				"PUT /indexes/" + uid + "/settings/sortable-attributes": {Code: "invalid_settings", Message: "too many"},
			},
			wantErr: "sortable attributes",
		},
		{
			name: "searchable attributes task fails",
			failTask: map[string]taskError{
				"PUT /indexes/" + uid + "/settings/searchable-attributes": {Code: "invalid_settings", Message: "nope"},
			},
			wantErr: "searchable attributes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, a := newFakeServer(t)
			for k, v := range tt.failTask {
				f.failTask[k] = v
			}
			for k, v := range tt.reject {
				f.reject[k] = v
			}

			err := a.EnsureMapping(context.Background(), "landregistry", "doc", testMapping)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestApplyPreservesActionOrder(t *testing.T) {
	f, a := newFakeServer(t)
	uid := IndexUID("landregistry", "doc")
	other := IndexUID("other", "doc")

	actions := []index.Action{
		index.NewUpsertAction("landregistry", "doc", "T1-A", map[string]any{"title_number": "T1"}),
		index.NewUpsertAction("landregistry", "doc", "T2-A", map[string]any{"title_number": "T2"}),
		index.NewDeleteAction("landregistry", "doc", "T1-A"),
		index.NewUpsertAction("other", "doc", "T3-A", map[string]any{"title_number": "T3"}),
	}

	result, err := a.Apply(context.Background(), actions)
	require.NoError(t, err)
	assert.Equal(t, 4, result.Succeeded)
	assert.NoError(t, result.Err())

	reqs := f.Requests()
	require.Len(t, reqs, 3)

	assert.Equal(t, "PUT /indexes/"+uid+"/documents", reqs[0].String())
	docs := decodeBody[[]map[string]any](t, reqs[0])
	require.Len(t, docs, 2)
	assert.Equal(t, "T1-A", docs[0][idField])
	assert.Equal(t, DocumentKey("T1-A"), docs[0][primaryKey])
	assert.Equal(t, "T1", docs[0]["title_number"])
	assert.Equal(t, "T2-A", docs[1][idField])

	assert.Equal(t, "POST /indexes/"+uid+"/documents/delete-batch", reqs[1].String())
	assert.Equal(t, []string{DocumentKey("T1-A")}, decodeBody[[]string](t, reqs[1]))

	assert.Equal(t, "PUT /indexes/"+other+"/documents", reqs[2].String())
}

func TestApplyTaskFailureReportsGroupMembers(t *testing.T) {
	f, a := newFakeServer(t)
	uid := IndexUID("landregistry", "doc")
	f.failTask["POST /indexes/"+uid+"/documents/delete-batch"] = taskError{Code: "internal", Message: "disk full"}

	result, err := a.Apply(context.Background(), []index.Action{
		index.NewUpsertAction("landregistry", "doc", "T1-A", map[string]any{}),
		index.NewDeleteAction("landregistry", "doc", "T2-A"),
		index.NewDeleteAction("landregistry", "doc", "T3-A"),
		index.NewUpsertAction("landregistry", "doc", "T4-A", map[string]any{}),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, index.ActionError{Index: 1, Type: index.ActionDelete, ID: "T2-A", Reason: "disk full"}, result.Errors[0])
	assert.Equal(t, 2, result.Errors[1].Index)

	var bulkErr *index.BulkError
	assert.True(t, errors.As(result.Err(), &bulkErr))

	// Later groups are still submitted.
	assert.Len(t, f.Requests(), 3)
}

func TestApplySubmitError(t *testing.T) {
	f, a := newFakeServer(t)
	uid := IndexUID("landregistry", "doc")
	f.reject["PUT /indexes/"+uid+"/documents"] = http.StatusBadRequest

	result, err := a.Apply(context.Background(), []index.Action{
		index.NewUpsertAction("landregistry", "doc", "T1-A", map[string]any{}),
	})
	assert.Nil(t, result)
	assert.ErrorContains(t, err, "failed to submit 1 update action(s)")
}

func TestLatestDocument(t *testing.T) {
	f, a := newFakeServer(t)
	uid := IndexUID("landregistry", "doc")
	f.hits = []map[string]any{{
		primaryKey:       DocumentKey("T2-A"),
		idField:          "T2-A",
		"title_number":   "T2",
		"entry_datetime": "2015-04-02T00:00:00.000+0000",
	}}

	doc, err := a.LatestDocument(context.Background(), "landregistry", "doc", "entry_datetime", "title_number")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title_number":   "T2",
		"entry_datetime": "2015-04-02T00:00:00.000+0000",
	}, doc)

	reqs := f.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "POST /indexes/"+uid+"/search", reqs[0].String())
	search := decodeBody[struct {
		Limit int64    `json:"limit"`
		Sort  []string `json:"sort"`
	}](t, reqs[0])
	assert.Equal(t, int64(1), search.Limit)
	assert.Equal(t, []string{"entry_datetime:desc", "title_number:desc"}, search.Sort)
}

func TestLatestDocumentEmptyIndex(t *testing.T) {
	_, a := newFakeServer(t)

	doc, err := a.LatestDocument(context.Background(), "landregistry", "doc", "entry_datetime")
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestLatestDocumentSearchError(t *testing.T) {
	f, a := newFakeServer(t)
	f.reject["POST /indexes/"+IndexUID("landregistry", "doc")+"/search"] = http.StatusBadRequest

	_, err := a.LatestDocument(context.Background(), "landregistry", "doc", "entry_datetime")
	assert.ErrorContains(t, err, "failed to search index")
}
