// Package reaper runs the scheduled TTL sweep that deletes expired job
// records. A sweep also runs on demand when an operator triggers cleanup
// through the API. Sweep errors are logged and retried on the next tick;
// they never stop the schedule.
package reaper
