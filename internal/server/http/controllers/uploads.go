package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/avasko/dray/internal/job"
	jobsvc "github.com/avasko/dray/internal/services/jobs"
)

// UploadsController handles the producer side: bulk submissions that
// become queued jobs.
type UploadsController struct {
	svc      *jobsvc.Service
	maxBytes int64
}

// NewUploadsController creates a new uploads controller. maxBytes bounds
// the accepted request body size.
func NewUploadsController(svc *jobsvc.Service, maxBytes int64) *UploadsController {
	return &UploadsController{svc: svc, maxBytes: maxBytes}
}

// RegisterRoutes registers upload routes with the given mux.
func (c *UploadsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/bulk-upload/", c.handleUpload)
}

// handleUpload accepts POST /v1/bulk-upload/{entity} where entity is one
// of the known bulk-upload kinds. The body is either a bare JSON array
// of records or an object wrapping it under the entity name.
func (c *UploadsController) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}
	entity := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/bulk-upload/"), "/")
	queue, ok := job.QueueForEntity(entity)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown upload kind %q", entity))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, c.maxBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	records, err := extractRecords(body, entity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	receipt, err := c.svc.Enqueue(r.Context(), jobsvc.EnqueueRequest{
		Queue:       queue,
		OrgID:       callerOrg(r),
		Payload:     records,
		RecordCount: recordCount(records),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeStatusJSON(w, http.StatusAccepted, uploadAccepted{
		JobID:                   receipt.JobID,
		QueueName:               string(receipt.Queue),
		Status:                  string(job.StatusQueued),
		TotalRecords:            receipt.RecordCount,
		EstimatedProcessingTime: estimateHuman(receipt.EstimatedMs),
		StatusCheckURL:          fmt.Sprintf("/v1/jobs/%s/%s/status", receipt.Queue, receipt.JobID),
	})
}

// extractRecords returns the record array from either body form.
func extractRecords(body []byte, entity string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty request body")
	}
	if trimmed[0] == '[' {
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, fmt.Errorf("body is not a JSON array: %v", err)
		}
		return trimmed, nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, fmt.Errorf("body is not JSON: %v", err)
	}
	inner, ok := wrapper[entity]
	if !ok {
		return nil, fmt.Errorf("object body must carry the records under %q", entity)
	}
	inner = bytes.TrimSpace(inner)
	if len(inner) == 0 || inner[0] != '[' {
		return nil, fmt.Errorf("%q must be a JSON array", entity)
	}
	return inner, nil
}

// recordCount counts the top-level elements of a record array. The array
// was validated by extractRecords, so decode errors yield zero and fail
// enqueue validation downstream.
func recordCount(records json.RawMessage) int {
	var arr []json.RawMessage
	if err := json.Unmarshal(records, &arr); err != nil {
		return 0
	}
	return len(arr)
}

// estimateHuman renders a processing-time estimate in whole seconds.
func estimateHuman(ms int64) string {
	secs := (ms + 999) / 1000
	if secs <= 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", secs)
}
