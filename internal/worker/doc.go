// Package worker runs the background executors that drain job queues.
//
// A Registry maps each queue to its Handler. A Pool spawns a fixed number
// of executor goroutines per registered queue; each executor loops
// claim -> run -> complete/fail, sleeping with jitter when its queue is
// empty so idle executors do not poll in lockstep. Handler panics are
// recovered and recorded as job failures, never crash the process.
package worker
