package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hovavo/pxt-states/internal/states"
)

// maxHistoryLimit mirrors the history repository's clamp.
const maxHistoryLimit = 200

// machineResponse is the JSON view of a machine.
type machineResponse struct {
	ID            string   `json:"id"`
	Main          bool     `json:"main"`
	Current       string   `json:"current"`
	Previous      string   `json:"previous"`
	Next          string   `json:"next"`
	RunningTimeMS int64    `json:"running_time_ms"`
	States        []string `json:"states"`
}

func toMachineResponse(snap states.Snapshot) machineResponse {
	ids := make([]string, len(snap.States))
	for i, id := range snap.States {
		ids[i] = id.String()
	}
	return machineResponse{
		ID:            snap.ID.String(),
		Main:          snap.Main,
		Current:       snap.Current.String(),
		Previous:      snap.Previous.String(),
		Next:          snap.Next.String(),
		RunningTimeMS: snap.RunningTime.Milliseconds(),
		States:        ids,
	}
}

type setStateRequest struct {
	State string `json:"state"`
}

type transitionRequest struct {
	Selector string `json:"selector"`
}

type debugRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleListMachines returns every machine, main first.
func (s *Server) handleListMachines(w http.ResponseWriter, _ *http.Request) {
	machines := s.registry.Machines()
	out := make([]machineResponse, 0, len(machines))
	for _, m := range machines {
		out = append(out, toMachineResponse(m.Snapshot()))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"machines": out,
		"count":    len(out),
	})
}

// handleGetMachine returns one machine. Unknown machines are 404; reading
// never creates one.
func (s *Server) handleGetMachine(w http.ResponseWriter, r *http.Request) {
	m, ok := s.registry.Lookup(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "machine not found")
		return
	}
	writeJSON(w, http.StatusOK, toMachineResponse(m.Snapshot()))
}

// handleSetMachineState transitions a machine, creating it and the target
// state if needed, exactly like a SetState call from code.
func (s *Server) handleSetMachineState(w http.ResponseWriter, r *http.Request) {
	var req setStateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if states.NewID(req.State) == "" {
		writeBadRequest(w, "state is required")
		return
	}
	if strings.Contains(req.State, ".") {
		writeBadRequest(w, "state must not contain '.'; use POST /transitions for selectors")
		return
	}

	m := s.registry.Resolve(chi.URLParam(r, "id"))
	m.SetState(r.Context(), req.State)
	s.logger.Info("state set via API", "machine", m.ID(), "state", states.NewID(req.State))

	writeJSON(w, http.StatusOK, toMachineResponse(m.Snapshot()))
}

// handleTransition applies a "[machine.]state" selector.
func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	sel := states.ParseSelector(req.Selector)
	if sel.State == "" {
		writeBadRequest(w, "selector names no state")
		return
	}

	s.registry.SetState(r.Context(), req.Selector)
	s.logger.Info("transition requested via API", "selector", sel.String())

	m, _ := s.registry.Lookup(sel.Machine.String())
	writeJSON(w, http.StatusOK, toMachineResponse(m.Snapshot()))
}

// handleMachineHistory returns recent transitions of a machine, newest first.
func (s *Server) handleMachineHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "transition history is disabled")
		return
	}

	limit, ok := parseHistoryLimit(r.URL.Query().Get("limit"))
	if !ok {
		writeBadRequest(w, "limit must be an integer between 1 and 200")
		return
	}

	id := chi.URLParam(r, "id")
	entries, err := s.history.GetHistory(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("querying transition history failed", "machine", id, "error", err)
		writeInternalError(w, "failed to query history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"machine":     states.NewID(id),
		"transitions": entries,
		"count":       len(entries),
	})
}

// parseHistoryLimit returns 0 (repository default) for an empty value.
func parseHistoryLimit(raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > maxHistoryLimit {
		return 0, false
	}
	return limit, true
}

func (s *Server) handleGetDebug(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.registry.DebugEnabled()})
}

func (s *Server) handleSetDebug(w http.ResponseWriter, r *http.Request) {
	var req debugRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}

	s.registry.SetDebug(*req.Enabled)
	s.logger.Info("debug output toggled via API", "enabled", *req.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}
