// Package id generates time-ordered 128-bit job identifiers.
//
// IDs embed a millisecond timestamp in their high 8 bytes so that the byte
// (and hex) ordering of IDs matches creation order. The job store relies on
// this to serve claims oldest-first without a separate timestamp index.
package id
