// Package ingest provides the shipped queue handlers. Domain validation
// and persistence live in external systems; these handlers treat the
// payload as an opaque JSON array, walk it with progress reporting, and
// summarize what they saw.
package ingest
