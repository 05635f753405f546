package job

import "encoding/json"

// Status is the lifecycle state of a job record.
type Status string

// Job statuses. Transitions are monotonic:
// queued -> active -> {completed|failed}. Terminal states are sinks; the
// only way out is deletion by the reaper.
const (
	StatusQueued    Status = "queued"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Statuses lists all states in lifecycle order, used by stats aggregation.
func Statuses() []Status {
	return []Status{StatusQueued, StatusActive, StatusCompleted, StatusFailed}
}

// Record is the persisted state of one submitted unit of work. The payload
// is opaque to the queue core; only the registered handler for the record's
// queue interprets it.
type Record struct {
	ID          string          `json:"id"`
	Queue       Queue           `json:"queue"`
	OrgID       string          `json:"orgId"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	RecordCount int             `json:"recordCount"`

	Status       Status          `json:"status"`
	Progress     int             `json:"progress"`
	Result       json.RawMessage `json:"result,omitempty"`
	FailedReason string          `json:"failedReason,omitempty"`

	CreatedAtMs    int64 `json:"createdAtMs"`
	ProcessedAtMs  int64 `json:"processedAtMs,omitempty"`
	CompletedAtMs  int64 `json:"completedAtMs,omitempty"`
	TTLExpiresAtMs int64 `json:"ttlExpiresAtMs"`
}

// Encode serializes the record to its store value format.
func (r *Record) Encode() ([]byte, error) { return json.Marshal(r) }

// Decode deserializes a store value into a Record.
func Decode(b []byte) (*Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
