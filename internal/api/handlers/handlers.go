package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/dvloznov/basket-export/internal/api/middleware"
	"github.com/dvloznov/basket-export/internal/contract"
	"github.com/dvloznov/basket-export/internal/domain"
	"github.com/dvloznov/basket-export/internal/jobs"
	"github.com/dvloznov/basket-export/internal/ledger"
	"github.com/dvloznov/basket-export/internal/logger"
	"github.com/dvloznov/basket-export/internal/pipeline"
)

// SnapshotsHandler serves the export audit trail.
type SnapshotsHandler struct {
	ledger ledger.Store
}

// NewSnapshotsHandler creates a new snapshots handler.
func NewSnapshotsHandler(store ledger.Store) *SnapshotsHandler {
	return &SnapshotsHandler{ledger: store}
}

// ListSnapshots handles GET /api/snapshots?contract_version=v1
func (h *SnapshotsHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	version, ok := contractVersion(w, r)
	if !ok {
		return
	}

	snapshots, err := h.ledger.List(ctx, version)
	if err != nil {
		log.Error().Err(err).Str("contract_version", version).Msg("Failed to list snapshots")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list snapshots")
		return
	}

	if mode := domain.ExportMode(r.URL.Query().Get("mode")); mode != "" {
		var filtered []domain.ExportSnapshot
		for _, s := range snapshots {
			if s.Mode == mode {
				filtered = append(filtered, s)
			}
		}
		snapshots = filtered
	}
	if snapshots == nil {
		snapshots = []domain.ExportSnapshot{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"contract_version": version,
		"snapshots":        snapshots,
		"count":            len(snapshots),
	})
}

// LatestSnapshot handles GET /api/snapshots/latest?contract_version=v1
func (h *SnapshotsHandler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	version, ok := contractVersion(w, r)
	if !ok {
		return
	}

	snap, err := h.ledger.Latest(ctx, version)
	if errors.Is(err, ledger.ErrNoSnapshot) {
		middleware.WriteError(w, http.StatusNotFound, "No snapshot recorded for "+version)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("contract_version", version).Msg("Failed to read latest snapshot")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read latest snapshot")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, snap)
}

func contractVersion(w http.ResponseWriter, r *http.Request) (string, bool) {
	version := r.URL.Query().Get("contract_version")
	if version == "" {
		version = contract.V1
	}
	if _, err := contract.Columns(version); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Unknown contract_version "+version)
		return "", false
	}
	return version, true
}

// Previewer is satisfied by *pipeline.Runner.
type Previewer interface {
	Preview(ctx context.Context, mode domain.ExportMode, filter *pipeline.Filter) (*pipeline.State, error)
}

// ExportsHandler accepts export requests.
type ExportsHandler struct {
	publisher jobs.Publisher
	previewer Previewer
}

// NewExportsHandler creates a new exports handler. previewer may be nil, in
// which case previews are not offered.
func NewExportsHandler(publisher jobs.Publisher, previewer Previewer) *ExportsHandler {
	return &ExportsHandler{publisher: publisher, previewer: previewer}
}

type exportRequest struct {
	Mode       domain.ExportMode `json:"mode"`
	From       string            `json:"from"`
	To         string            `json:"to"`
	Region     string            `json:"region"`
	StoreIDs   []string          `json:"store_ids"`
	MaxRetries int               `json:"max_retries"`
}

// decode validates the request body and returns the run filter it describes.
// Mode defaults to delta; a delta cannot carry a filter.
func (req *exportRequest) decode(r *http.Request) (*pipeline.Filter, error) {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return nil, errors.New("invalid request body")
	}
	f := &pipeline.Filter{Region: strings.TrimSpace(req.Region), StoreIDs: req.StoreIDs}
	if req.From != "" {
		d, err := civil.ParseDate(req.From)
		if err != nil {
			return nil, errors.New("invalid from date, want YYYY-MM-DD")
		}
		f.From = &d
	}
	if req.To != "" {
		d, err := civil.ParseDate(req.To)
		if err != nil {
			return nil, errors.New("invalid to date, want YYYY-MM-DD")
		}
		f.To = &d
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, errors.New("to must not be before from")
	}

	if req.Mode == "" {
		req.Mode = domain.ExportModeDelta
	}
	if !req.Mode.Valid() {
		return nil, errors.New("mode must be full or delta")
	}
	if req.Mode == domain.ExportModeDelta && !f.IsZero() {
		return nil, errors.New("delta exports cannot be filtered, use mode full")
	}
	return f, nil
}

// CreateExport handles POST /api/exports
func (h *ExportsHandler) CreateExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req exportRequest
	filter, err := req.decode(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := &jobs.ExportJob{
		Mode:       req.Mode,
		From:       filter.From,
		To:         filter.To,
		Region:     filter.Region,
		StoreIDs:   filter.StoreIDs,
		MaxRetries: req.MaxRetries,
	}

	// The job outlives the request.
	if err := h.publisher.PublishExport(context.WithoutCancel(ctx), job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue export job")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Failed to enqueue export job")
		return
	}

	log.Info().Str("job_id", job.JobID).Str("mode", string(job.Mode)).Msg("Export job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"mode":   string(job.Mode),
		"status": string(job.Status),
	})
}

// PreviewExport handles POST /api/exports/preview. It runs every stage up to
// validation and reports the run statistics without exporting.
func (h *ExportsHandler) PreviewExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	if h.previewer == nil {
		middleware.WriteError(w, http.StatusNotImplemented, "Preview is not available")
		return
	}

	var req exportRequest
	filter, err := req.decode(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	state, err := h.previewer.Preview(ctx, req.Mode, filter)
	if err != nil {
		log.Error().Err(err).Msg("Preview failed")
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":           state.RunID,
		"mode":             string(state.Mode),
		"contract_version": state.ContractVersion,
		"scope":            state.Scope,
		"stats":            state.Stats,
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrJobNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Mode:   domain.ExportMode(query.Get("mode")),
		Status: jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
