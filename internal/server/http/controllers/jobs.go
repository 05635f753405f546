package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/avasko/dray/internal/job"
	jobsvc "github.com/avasko/dray/internal/services/jobs"
)

// JobsController handles job status, queue stats, and the TTL
// administration endpoints.
type JobsController struct {
	svc *jobsvc.Service
}

// NewJobsController creates a new jobs controller.
func NewJobsController(svc *jobsvc.Service) *JobsController {
	return &JobsController{svc: svc}
}

// RegisterRoutes registers job routes with the given mux. Exact patterns
// take precedence over the catch-all status route.
func (c *JobsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/jobs/cleanup", c.handleCleanup)
	mux.HandleFunc("/v1/jobs/ttl/config", c.handleTTLConfig)
	mux.HandleFunc("/v1/jobs/", c.handleStatus)
	mux.HandleFunc("/v1/queues/stats", c.handleAllQueueStats)
	mux.HandleFunc("/v1/queues/", c.handleQueueStats)
}

// handleStatus serves GET /v1/jobs/{queue}/{id}/status.
func (c *JobsController) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[2] != "status" || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	view, err := c.svc.Status(r.Context(), callerOrg(r), job.Queue(parts[0]), parts[1])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, view)
}

// handleQueueStats serves GET /v1/queues/{queue}/stats.
func (c *JobsController) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/v1/queues/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[1] != "stats" || parts[0] == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	view, err := c.svc.QueueStats(r.Context(), job.Queue(parts[0]))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, view)
}

// handleAllQueueStats serves GET /v1/queues/stats. A queue whose scan
// failed is reported under its key without hiding the others.
func (c *JobsController) handleAllQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	views, errs := c.svc.AllQueueStats(r.Context())
	out := allQueueStats{
		Queues:    make(map[string]queueStatsEntry, len(views)+len(errs)),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	for q, v := range views {
		out.Queues[string(q)] = queueStatsEntry{QueueStatsView: v}
	}
	for q, err := range errs {
		out.Queues[string(q)] = queueStatsEntry{Error: err.Error()}
	}
	writeJSON(w, out)
}

// handleCleanup serves POST /v1/jobs/cleanup: a synchronous TTL sweep.
// Role enforcement happens upstream with the rest of authn.
func (c *JobsController) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	triggeredBy := callerOrg(r)
	if triggeredBy == "" {
		triggeredBy = "manual"
	}
	n, err := c.svc.Cleanup(r.Context(), triggeredBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, cleanupResponse{
		CleanedJobs: n,
		TriggeredBy: triggeredBy,
		TriggeredAt: time.Now().UTC().Format(time.RFC3339),
		TTLConfig:   c.svc.TTLConfig(),
	})
}

// handleTTLConfig serves GET /v1/jobs/ttl/config.
func (c *JobsController) handleTTLConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}
	writeJSON(w, c.svc.TTLConfig())
}
