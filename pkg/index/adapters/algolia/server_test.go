package algolia

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recordedRequest is a request received by fakeAlgolia, other than task
// polling.
type recordedRequest struct {
	Method string
	Path   string
	Body   json.RawMessage
}

func (r recordedRequest) String() string {
	return r.Method + " " + r.Path
}

// fakeAlgolia answers the Algolia REST API in process. Every task is
// published immediately.
type fakeAlgolia struct {
	mu       sync.Mutex
	requests []recordedRequest
	nextTask int64

	// reject makes a request fail with the given HTTP status.
	reject map[string]int
	// hits are returned by every search.
	hits []map[string]any
}

// handlerRequester sends requests straight to an http.Handler.
type handlerRequester struct {
	handler http.Handler
}

func (r handlerRequester) Request(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, req)
	return rec.Result(), nil
}

func newFakeAlgolia(t *testing.T) (*fakeAlgolia, *Adapter) {
	t.Helper()
	f := &fakeAlgolia{reject: make(map[string]int)}
	a, err := NewAdapter(&Config{
		AppID:       "TESTAPP",
		WriteAPIKey: "test-key",
		Hosts:       []string{"algolia.test"},
		Requester:   handlerRequester{handler: f},
	})
	require.NoError(t, err)
	return f, a
}

func (f *fakeAlgolia) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeAlgolia) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body io.Reader = r.Body
	if r.Body != nil && r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer gz.Close()
		body = gz
	}
	var raw []byte
	if body != nil {
		raw, _ = io.ReadAll(body)
	}

	path := r.URL.Path
	if r.Method == http.MethodGet && strings.Contains(path, "/task/") {
		writeJSON(w, http.StatusOK, map[string]any{"status": "published", "pendingTask": false})
		return
	}

	req := recordedRequest{Method: r.Method, Path: path}
	if len(raw) > 0 {
		req.Body = raw
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status, rejected := f.reject[req.String()]
	f.nextTask++
	task := f.nextTask
	hits := f.hits
	f.mu.Unlock()

	if rejected {
		writeJSON(w, status, map[string]any{"message": fmt.Sprintf("rejected %s", req), "status": status})
		return
	}

	switch {
	case r.Method == http.MethodGet && path == "/1/indexes":
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}, "nbPages": 1})
	case r.Method == http.MethodPost && path == "/1/indexes/*/batch":
		var batch struct {
			Requests []struct {
				IndexName string `json:"indexName"`
			} `json:"requests"`
		}
		_ = json.Unmarshal(raw, &batch)
		tasks := make(map[string]int64)
		for _, op := range batch.Requests {
			tasks[op.IndexName] = task
		}
		writeJSON(w, http.StatusOK, map[string]any{"taskID": tasks, "objectIDs": []string{}})
	case r.Method == http.MethodPut && strings.HasSuffix(path, "/settings"):
		writeJSON(w, http.StatusOK, map[string]any{"taskID": task, "updatedAt": "2024-01-02T03:04:05Z"})
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/query"):
		if hits == nil {
			hits = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"hits":             hits,
			"nbHits":           len(hits),
			"page":             0,
			"nbPages":          1,
			"hitsPerPage":      1,
			"processingTimeMS": 1,
			"query":            "",
			"params":           "",
		})
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "no route for " + req.String(), "status": 404})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
