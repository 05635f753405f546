// Package client contains Cobra CLI commands that talk to a running
// dray server over its HTTP API.
package client
