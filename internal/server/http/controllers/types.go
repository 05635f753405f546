package controllers

import jobsvc "github.com/avasko/dray/internal/services/jobs"

// uploadAccepted is the 202 response for an accepted bulk submission.
type uploadAccepted struct {
	JobID                   string `json:"jobId"`
	QueueName               string `json:"queueName"`
	Status                  string `json:"status"`
	TotalRecords            int    `json:"totalRecords"`
	EstimatedProcessingTime string `json:"estimatedProcessingTime"`
	StatusCheckURL          string `json:"statusCheckUrl"`
}

// queueStatsEntry is one queue's slot in the all-queues response: either
// the stats view or an error for that queue alone.
type queueStatsEntry struct {
	*jobsvc.QueueStatsView
	Error string `json:"error,omitempty"`
}

// allQueueStats is the aggregate stats response.
type allQueueStats struct {
	Queues    map[string]queueStatsEntry `json:"queues"`
	Timestamp string                     `json:"timestamp"`
}

// cleanupResponse reports one manually triggered sweep.
type cleanupResponse struct {
	CleanedJobs int                   `json:"cleanedJobs"`
	TriggeredBy string                `json:"triggeredBy"`
	TriggeredAt string                `json:"triggeredAt"`
	TTLConfig   *jobsvc.TTLConfigView `json:"ttlConfig"`
}
