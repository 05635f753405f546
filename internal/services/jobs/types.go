package jobsvc

import (
	"encoding/json"

	"github.com/avasko/dray/internal/job"
)

// EnqueueRequest describes one bulk submission.
type EnqueueRequest struct {
	Queue       job.Queue
	OrgID       string
	Payload     json.RawMessage
	RecordCount int
}

// Receipt is returned to the producer once a job is durably queued.
type Receipt struct {
	JobID       string
	Queue       job.Queue
	RecordCount int
	// EstimatedMs is a rough processing-time estimate derived from the
	// record count. It is advisory only.
	EstimatedMs int64
}

// StatusView is the org-visible projection of a job record.
type StatusView struct {
	JobID          string          `json:"jobId"`
	Queue          job.Queue       `json:"queueName"`
	Status         job.Status      `json:"status"`
	Progress       int             `json:"progress"`
	RecordCount    int             `json:"totalRecords"`
	Result         json.RawMessage `json:"result,omitempty"`
	FailedReason   string          `json:"failedReason,omitempty"`
	CreatedAtMs    int64           `json:"createdAt"`
	ProcessedAtMs  int64           `json:"processedAt,omitempty"`
	CompletedAtMs  int64           `json:"completedAt,omitempty"`
	TTLExpiresAtMs int64           `json:"ttlExpiresAt"`
}

// QueueStatsView is the per-queue status breakdown.
type QueueStatsView struct {
	Queue     job.Queue `json:"queueName"`
	Queued    int       `json:"queued"`
	Active    int       `json:"active"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	Total     int       `json:"total"`
}

// TTLConfigView reports the retention policy in milliseconds, seconds,
// and a human-readable form.
type TTLConfigView struct {
	JobTTL        TTLValue `json:"jobTTL"`
	CompletedTTL  TTLValue `json:"completedJobTTL"`
	FailedTTL     TTLValue `json:"failedJobTTL"`
	SweepInterval TTLValue `json:"cleanupInterval"`
}

// TTLValue is one retention duration in its three representations.
type TTLValue struct {
	Ms      int64  `json:"ms"`
	Seconds int64  `json:"seconds"`
	Human   string `json:"human"`
}
