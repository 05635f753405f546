package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/avasko/dray/internal/job"
	"github.com/avasko/dray/internal/worker"
)

// Summary is the stored result of a processed submission.
type Summary struct {
	Entity    string `json:"entity"`
	Total     int    `json:"total"`
	Processed int    `json:"processed"`
}

// HandlerFor builds the walk-and-summarize handler for a queue's entity.
func HandlerFor(queue job.Queue) worker.Handler {
	entity := queue.Entity()
	return func(ctx context.Context, payload json.RawMessage, report func(int)) (json.RawMessage, error) {
		var records []json.RawMessage
		if err := json.Unmarshal(payload, &records); err != nil {
			return nil, fmt.Errorf("payload is not a JSON array: %w", err)
		}
		total := len(records)
		if total == 0 {
			return json.Marshal(Summary{Entity: entity})
		}
		processed := 0
		for i := range records {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("processing interrupted at record %d of %d: %w", i+1, total, err)
			}
			processed++
			report(processed * 100 / total)
		}
		return json.Marshal(Summary{Entity: entity, Total: total, Processed: processed})
	}
}

// RegisterAll binds a handler for every known queue.
func RegisterAll(reg *worker.Registry) {
	for _, q := range job.Queues() {
		reg.Register(q, HandlerFor(q))
	}
}
