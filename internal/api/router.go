package api

import (
	"github.com/gorilla/mux"

	"github.com/clearcard/sqljob/internal/api/recovery"
	"github.com/clearcard/sqljob/internal/broker"
)

// NewRouter wires the job service's HTTP transport (the RPC surface's
// out-of-scope wrapper): a thin adapter over broker.Service, plus the
// health endpoint.
func NewRouter(svc *broker.Service) *mux.Router {
	router := mux.NewRouter()
	router.Use(recovery.Middleware)

	healthHandler := NewHealthHandler()
	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")

	jobsHandler := NewJobsHandler(svc)
	router.HandleFunc("/api/jobs", jobsHandler.Submit).Methods("POST")
	router.HandleFunc("/api/jobs/{job_id}", jobsHandler.GetStatus).Methods("GET")
	router.HandleFunc("/api/jobs/{job_id}/manifest", jobsHandler.GetManifest).Methods("GET")
	router.HandleFunc("/api/jobs/{job_id}/cancel", jobsHandler.Cancel).Methods("POST")

	return router
}
