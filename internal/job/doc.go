// Package job defines the job record data model: the closed set of queue
// names, the status state machine, and the persisted Record shape.
//
// A Record's payload is opaque here. The queue core never looks inside it
// beyond presence and the caller-reported record count; interpretation
// belongs to the handler registered for the record's queue.
package job
