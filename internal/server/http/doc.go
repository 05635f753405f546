// Package httpserver exposes the JSON/HTTP API: bulk-upload producers,
// org-scoped job status, queue stats, and the TTL administration
// endpoints. Routes live in the controllers subpackage; this package
// owns the listener lifecycle and cross-cutting middleware.
package httpserver
