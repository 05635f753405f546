// Package pebblestore wraps cockroachdb/pebble with dray's durability
// policy. All job-store mutations go through batches committed here so a
// single fsync setting governs the whole keyspace.
package pebblestore
