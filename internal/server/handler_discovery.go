package server

import "net/http"

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description"`
}

type discoveryResponse struct {
	Name      string         `json:"name"`
	Version   string         `json:"version"`
	Endpoints []endpointInfo `json:"endpoints"`
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, discoveryResponse{
		Name:    "uthread debug API",
		Version: "v1",
		Endpoints: []endpointInfo{
			{"/api/v1/health", []string{"GET"}, "Server health and version"},
			{"/api/v1/stats", []string{"GET"}, "Live scheduler counters"},
			{"/api/v1/runs", []string{"GET"}, "Recorded scheduler runs, newest first"},
			{"/api/v1/runs/{id}", []string{"GET"}, "Single run with final stats"},
			{"/api/v1/runs/{id}/events", []string{"GET"}, "Scheduling events of a run in sequence order"},
		},
	})
}
