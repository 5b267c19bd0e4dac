// Package api serves the read-only health and status endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/indexsync/internal/server"
)

// internalServerErrorBody is returned for any unhandled failure. Details are
// only logged.
const internalServerErrorBody = `{"error":"Internal server error"}`

// NewRouter returns the HTTP handler for all endpoints.
//
//	GET /        - Alias of /health
//	GET /health  - Probe the index engine and the source store
//	GET /status  - Sync progress of every index updater
func NewRouter(srv server.Server) http.Handler {
	if srv.Logger == nil {
		srv.Logger = hclog.NewNullLogger()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(srv.Logger))
	r.Use(recoverer(srv.Logger))

	health := HealthHandler(srv)
	r.Method(http.MethodGet, "/", health)
	r.Method(http.MethodGet, "/health", health)
	r.Method(http.MethodGet, "/status", StatusHandler(srv))

	return r
}

// recoverer turns a panicking handler into a 500 JSON response.
func recoverer(logger hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("an error occurred when processing a request",
						"path", r.URL.Path,
						"request_id", middleware.GetReqID(r.Context()),
						"panic", rec,
						"stack", string(debug.Stack()),
					)
					writeInternalServerError(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func requestLogger(logger hclog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func writeInternalServerError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(internalServerErrorBody))
}

// respondJSON encodes v before writing the header so an encoding failure
// can still produce a 500.
func respondJSON(w http.ResponseWriter, logger hclog.Logger, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error("error encoding response", "error", err)
		writeInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
