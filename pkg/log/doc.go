// Package log is dray's structured logging layer.
//
// Components receive a Logger by dependency injection and tag their entries
// with Component("..."). Entries flow through a Formatter (text or JSON) to
// one or more Outputs. RedirectStdLog captures standard-library log output,
// which Pebble uses internally, so that storage logs share the same format.
package log
