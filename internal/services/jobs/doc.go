// Package jobsvc is the application service over the job store. It owns
// validation, org-scoped access control, stats aggregation, and the
// operator cleanup surface; transports (HTTP, CLI) stay thin over it.
package jobsvc
