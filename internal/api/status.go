package api

import (
	"net/http"

	"github.com/hashicorp-forge/indexsync/internal/server"
	"github.com/hashicorp-forge/indexsync/pkg/datefmt"
)

// StatusResponse is the body of the status endpoint.
type StatusResponse struct {
	// PollingInterval is in seconds.
	PollingInterval int                              `json:"polling_interval"`
	Status          map[string]UpdaterStatusResponse `json:"status"`
}

// UpdaterStatusResponse is the state of one index updater. Unknown values
// are null.
type UpdaterStatusResponse struct {
	LastSuccessfulSyncTime    *string `json:"last_successful_sync_time"`
	LastUnsuccessfulSyncTime  *string `json:"last_unsuccessful_sync_time"`
	LastTitleModificationDate *string `json:"last_title_modification_date"`
	LastTitleNumber           *string `json:"last_title_number"`
	IsBusy                    bool    `json:"is_busy"`
	IndexName                 string  `json:"index_name"`
	DocType                   string  `json:"doc_type"`
}

// StatusHandler reports the sync progress of every index updater.
func StatusHandler(srv server.Server) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := srv.Status.Snapshot()

		resp := StatusResponse{
			PollingInterval: int(snap.PollingInterval.Seconds()),
			Status:          make(map[string]UpdaterStatusResponse, len(snap.Updaters)),
		}
		for _, u := range snap.Updaters {
			st := UpdaterStatusResponse{
				LastSuccessfulSyncTime:   datefmt.FormatMillisPtr(u.Progress.LastSuccessfulSyncTime),
				LastUnsuccessfulSyncTime: datefmt.FormatMillisPtr(u.Progress.LastUnsuccessfulSyncTime),
				IsBusy:                   u.IsBusy,
				IndexName:                u.IndexName,
				DocType:                  u.DocType,
			}
			if u.Progress.Known {
				key := u.Progress.Watermark.Key
				st.LastTitleModificationDate = datefmt.FormatMillisPtr(u.Progress.Watermark.Timestamp)
				st.LastTitleNumber = &key
			}
			resp.Status[u.ID] = st
		}

		respondJSON(w, srv.Logger, http.StatusOK, resp)
	})
}
