package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"georeg/internal/storage"
)

// RunListResponse is the payload of the run history endpoint.
type RunListResponse struct {
	Runs  []storage.RunRecord `json:"runs"`
	Count int                 `json:"count"`
}

// RunScenesResponse lists the per-scene verdicts of one run.
type RunScenesResponse struct {
	RunID  string                `json:"run_id"`
	Scenes []storage.SceneRecord `json:"scenes"`
	Count  int                   `json:"count"`
}

// setupRunRoutes adds the run history endpoints.
func (s *Server) setupRunRoutes(r *mux.Router) {
	r.HandleFunc("/api/runs", s.handleRuns).Methods("GET")
	r.HandleFunc("/api/runs/{id}", s.handleRun).Methods("GET")
	r.HandleFunc("/api/runs/{id}/scenes", s.handleRunScenes).Methods("GET")
}

// handleRuns returns recent runs, newest first.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	runs, err := s.store.RecentRuns(limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := RunListResponse{
		Runs:  runs,
		Count: len(runs),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleRun returns one run by ID.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	run, err := s.store.Run(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// handleRunScenes returns the scene verdicts of one run.
func (s *Server) handleRunScenes(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	scenes, err := s.store.RunScenes(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := RunScenesResponse{
		RunID:  id,
		Scenes: scenes,
		Count:  len(scenes),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
