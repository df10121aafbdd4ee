package server

import (
	"net/http"
	"strings"

	"github.com/posefactory/renderq/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes - Jobs
	mux.HandleFunc("/jobs", s.handleJobsRoute)  // GET (list), POST (submit)
	mux.HandleFunc("/jobs/", s.handleJobRoutes) // GET /{id}, POST /{id}/download

	return mux
}

// handleJobsRoute dispatches the collection route by method.
func (s *Server) handleJobsRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.jobHandler.ListHandler(w, r)
	case http.MethodPost:
		s.jobHandler.SubmitHandler(w, r)
	default:
		handlers.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", "validation")
	}
}

// handleJobRoutes dispatches /jobs/{id} and /jobs/{id}/download. The
// id segment is sanitized inside the handlers before any store probe.
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		s.jobHandler.StatusHandler(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "download":
		s.jobHandler.DownloadHandler(w, r, parts[0])
	default:
		handlers.WriteError(w, http.StatusNotFound, "not found", "not_found")
	}
}
