// Package jobstore implements the durable queue store for job records over
// Pebble.
//
// # Keyspace
//
// Per queue, all keys are prefixed with jq/{queue}/:
//
//	job/{id}           - record JSON
//	pending/{id}       - FIFO claim index (ids sort by creation time)
//	st/{status}/{id}   - per-status index for stats
//
// plus one global index:
//
//	jqttl/{expires_ms}/{queue}/{id} - TTL expiry index in deadline order
//
// # Record Lifecycle
//
//  1. Create: record written with status queued, pending and status indexes
//     set, TTL index entry at the creation hard cap
//  2. Claim: oldest pending entry wins; queued -> active under the store
//     mutex so the transition is exclusive
//  3. Progress: best-effort, monotone, active records only
//  4. Complete/Fail: terminal status, result or reason recorded, TTL index
//     entry moved to the terminal retention deadline
//  5. Sweep: the reaper deletes everything at or past its deadline
//
// Cross-record locking does not exist; every mutation is scoped to one
// record. Transitions and sweeps serialize under a single store mutex, so
// a sweep can never interleave with a read-modify-write and resurrect a
// deleted record.
package jobstore
