package meilisearch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// recordedRequest is a request received by fakeServer, other than task
// polling and health checks.
type recordedRequest struct {
	Method string
	Path   string
	Body   json.RawMessage
}

func (r recordedRequest) String() string {
	return r.Method + " " + r.Path
}

type taskError struct {
	Code    string
	Message string
}

// fakeServer is an in-process stand-in for the Meilisearch HTTP API. Every
// write is accepted as a task that succeeds unless a failure is registered
// for "METHOD /path".
type fakeServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	tasks    map[int64]string
	nextTask int64

	// failTask makes the task created by a request fail.
	failTask map[string]taskError
	// reject makes a request fail with the given HTTP status.
	reject map[string]int
	// hits are returned by every search.
	hits []map[string]any
}

func newFakeServer(t *testing.T) (*fakeServer, *Adapter) {
	t.Helper()
	f := &fakeServer{
		tasks:    make(map[int64]string),
		failTask: make(map[string]taskError),
		reject:   make(map[string]int),
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	a, err := NewAdapter(&Config{Host: srv.URL, APIKey: "masterKey", TaskPollInterval: time.Millisecond})
	require.NoError(t, err)
	return f, a
}

func (f *fakeServer) Requests() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && r.URL.Path == "/health" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "available"})
		return
	}
	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/tasks/") {
		f.serveTask(w, strings.TrimPrefix(r.URL.Path, "/tasks/"))
		return
	}

	body, _ := io.ReadAll(r.Body)
	req := recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	status, rejected := f.reject[req.String()]
	hits := f.hits
	f.mu.Unlock()

	if rejected {
		writeJSON(w, status, map[string]string{
			"message": "rejected by test server",
			"code":    "invalid_request",
			"type":    "invalid_request",
			"link":    "",
		})
		return
	}

	if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/search") {
		if hits == nil {
			hits = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"hits":               hits,
			"query":              "",
			"processingTimeMs":   1,
			"limit":              1,
			"offset":             0,
			"estimatedTotalHits": len(hits),
		})
		return
	}

	f.mu.Lock()
	f.nextTask++
	uid := f.nextTask
	f.tasks[uid] = req.String()
	f.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"taskUid":    uid,
		"status":     "enqueued",
		"enqueuedAt": "2015-04-20T10:11:12Z",
	})
}

func (f *fakeServer) serveTask(w http.ResponseWriter, id string) {
	uid, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		http.NotFound(w, nil)
		return
	}

	f.mu.Lock()
	origin, ok := f.tasks[uid]
	failure, failed := f.failTask[origin]
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"message": fmt.Sprintf("task %d not found", uid),
			"code":    "task_not_found",
			"type":    "invalid_request",
			"link":    "",
		})
		return
	}

	task := map[string]any{
		"uid":        uid,
		"status":     "succeeded",
		"enqueuedAt": "2015-04-20T10:11:12Z",
	}
	if failed {
		task["status"] = "failed"
		task["error"] = map[string]string{
			"message": failure.Message,
			"code":    failure.Code,
			"type":    "invalid_request",
			"link":    "",
		}
	}
	writeJSON(w, http.StatusOK, task)
}
