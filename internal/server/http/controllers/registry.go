package controllers

import (
	"net/http"

	"github.com/avasko/dray/internal/runtime"
	jobsvc "github.com/avasko/dray/internal/services/jobs"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes.
type ControllerRegistry struct {
	general *GeneralController
	uploads *UploadsController
	jobs    *JobsController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, svc *jobsvc.Service) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		uploads: NewUploadsController(svc, int64(rt.Config().PayloadMaxBytes)),
		jobs:    NewJobsController(svc),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.uploads.RegisterRoutes(mux)
	r.jobs.RegisterRoutes(mux)
}
