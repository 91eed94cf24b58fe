// Package api wires the audit and export endpoints.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/basket-export/internal/api/handlers"
	"github.com/dvloznov/basket-export/internal/api/middleware"
	"github.com/dvloznov/basket-export/internal/jobs"
	"github.com/dvloznov/basket-export/internal/ledger"
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Ledger    ledger.Store
	Publisher jobs.Publisher
	JobStore  jobs.JobStore
	Previewer handlers.Previewer // optional
	Log       zerolog.Logger
}

// NewRouter builds the routes and wraps them in the middleware chain.
func NewRouter(d Deps) http.Handler {
	snapshotsHandler := handlers.NewSnapshotsHandler(d.Ledger)
	exportsHandler := handlers.NewExportsHandler(d.Publisher, d.Previewer)
	jobsHandler := handlers.NewJobsHandler(d.JobStore)

	mux := http.NewServeMux()

	// Snapshot audit endpoints
	mux.HandleFunc("/api/snapshots", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			snapshotsHandler.ListSnapshots(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/snapshots/latest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			snapshotsHandler.LatestSnapshot(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Export endpoints
	mux.HandleFunc("/api/exports", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			exportsHandler.CreateExport(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/exports/preview", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			exportsHandler.PreviewExport(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Jobs endpoints
	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return middleware.Recovery(d.Log)(
		middleware.RequestID(
			middleware.Logger(d.Log)(
				middleware.CORS(mux),
			),
		),
	)
}
