package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp-forge/indexsync/internal/server"
)

const healthCheckTimeout = 10 * time.Second

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status string   `json:"status"`
	Errors []string `json:"errors,omitempty"`
}

// HealthHandler checks that the index engine and the source store respond.
func HealthHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		var result *multierror.Error
		if err := srv.IndexEngine.Health(ctx); err != nil {
			result = multierror.Append(result,
				fmt.Errorf("Problem talking to %s: %w", srv.IndexEngine.Name(), err))
		}
		if err := srv.SourceReader.Ping(ctx); err != nil {
			result = multierror.Append(result,
				fmt.Errorf("Problem talking to %s: %w", srv.SourceReader.Name(), err))
		}

		if result == nil {
			respondJSON(w, srv.Logger, http.StatusOK, HealthResponse{Status: "ok"})
			return
		}

		resp := HealthResponse{Status: "error"}
		for _, err := range result.Errors {
			resp.Errors = append(resp.Errors, err.Error())
		}
		srv.Logger.Warn("health check failed", "errors", resp.Errors)
		respondJSON(w, srv.Logger, http.StatusInternalServerError, resp)
	})
}
