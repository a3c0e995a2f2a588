package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ridesim/internal/instance"
	"ridesim/internal/model"
	"ridesim/internal/store"
)

// SimulationsHandler handles POST/GET /v1/simulations
func (s *Server) SimulationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/simulations" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.createSimulation(w, r)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be a positive integer", r.URL.Path)
				return
			}
			limit = n
		}
		items, next, err := s.Store.ListRuns(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List simulations failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) createSimulation(w http.ResponseWriter, r *http.Request) {
	if limit := s.Config.Server.MaxBodyBytes; limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}
	lim := s.Config.Simulation.Limits()
	req, err := decodeSimulationRequest(r, lim)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request body", err.Error(), r.URL.Path)
		return
	}
	if err := validateSimulationRequest(&req, lim); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid simulation request", err.Error(), r.URL.Path)
		return
	}
	run := s.newRun(req)
	in := toInstance(req.Instance)
	sorted := s.sortPool(req)
	if err := s.Store.SaveRun(r.Context(), run); err != nil {
		writeProblem(w, http.StatusInternalServerError, "Create simulation failed", err.Error(), r.URL.Path)
		return
	}
	if sync, _ := strconv.ParseBool(r.URL.Query().Get("sync")); sync {
		run = s.execute(r.Context(), run, in, sorted)
		writeJSON(w, http.StatusOK, run)
		return
	}
	s.startAsync(run, in, sorted)
	w.Header().Set("Location", "/v1/simulations/"+run.ID)
	writeJSON(w, http.StatusAccepted, map[string]any{"id": run.ID, "status": run.Status})
}

// decodeSimulationRequest accepts either the JSON request or a raw text
// instance with options in the query string. Text headers are checked
// against lim before the rides are read.
func decodeSimulationRequest(r *http.Request, lim instance.Limits) (model.SimulationRequest, error) {
	var req model.SimulationRequest
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "text/plain") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}
	in, err := instance.ParseLimited(r.Body, lim)
	if err != nil {
		return req, err
	}
	req.Instance = fromInstance(in)
	q := r.URL.Query()
	req.Label = q.Get("label")
	req.Policy = q.Get("policy")
	if v := q.Get("restarts"); v != "" {
		if req.Restarts, err = strconv.Atoi(v); err != nil {
			return req, fmt.Errorf("restarts: %w", err)
		}
	}
	if v := q.Get("seed"); v != "" {
		if req.Seed, err = strconv.ParseInt(v, 10, 64); err != nil {
			return req, fmt.Errorf("seed: %w", err)
		}
	}
	if v := q.Get("sortPool"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("sortPool: %w", err)
		}
		req.SortPool = &b
	}
	return req, nil
}

// SimulationByIDHandler handles /v1/simulations/{id}[/output|/events]
func (s *Server) SimulationByIDHandler(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/simulations/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch sub {
	case "":
		run, ok := s.lookupRun(w, r, id)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, run)
	case "output":
		run, ok := s.lookupRun(w, r, id)
		if !ok {
			return
		}
		if run.Status != model.RunCompleted {
			writeProblem(w, http.StatusConflict, "Simulation not completed", "status is "+run.Status, r.URL.Path)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := instance.WriteAssignments(w, run.Assignments); err != nil {
			s.Logger.Warn("write output failed", "run", id, "err", err)
		}
	case "events":
		s.streamEvents(w, r, id)
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
	}
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request, id string) (model.Run, bool) {
	run, err := s.Store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeProblem(w, http.StatusNotFound, "Simulation not found", id, r.URL.Path)
		return model.Run{}, false
	}
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Get simulation failed", err.Error(), r.URL.Path)
		return model.Run{}, false
	}
	return run, true
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, 200, map[string]string{"status": "ready"})
}
