package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/autofranco/frankie/internal/dispatch"
	"github.com/autofranco/frankie/internal/executor"
	"github.com/autofranco/frankie/internal/lead"
	"github.com/autofranco/frankie/internal/store"
)

// CreateLeadRequest is the request body for POST /leads
type CreateLeadRequest struct {
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	Company    string `json:"company"`
	Position   string `json:"position"`
	Department string `json:"department,omitempty"`
}

// StatusEditRequest is the request body for PATCH /leads/{row}/status
type StatusEditRequest struct {
	Status string `json:"status"`
}

// SweepResponse is the response for POST /sweep
type SweepResponse struct {
	Status string `json:"status"`
}

// StatsResponse is the response for GET /stats
type StatsResponse struct {
	Leads    map[lead.Status]int `json:"leads"`
	Triggers map[string]int      `json:"triggers"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	var (
		leads []*lead.Lead
		err   error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		leads, err = s.store.ListByStatus(lead.Status(status))
	} else {
		leads, err = s.store.List()
	}
	if err != nil {
		s.logger.Error("failed to list leads", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	if leads == nil {
		leads = []*lead.Lead{}
	}
	s.sendJSON(w, http.StatusOK, leads)
}

func (s *Server) handleCreateLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	l := &lead.Lead{
		Email:      req.Email,
		FirstName:  req.FirstName,
		Company:    req.Company,
		Position:   req.Position,
		Department: req.Department,
	}
	// Rows are accepted even when invalid; the validator keeps them
	// out of the pipeline and the caller sees why here.
	res := lead.Validate(l)

	if err := s.store.Create(l); err != nil {
		s.logger.Error("failed to create lead", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to create lead")
		return
	}

	s.sendJSON(w, http.StatusCreated, struct {
		*lead.Lead
		ValidationErrors []string `json:"validation_errors,omitempty"`
	}{l, res.Errors})
}

func (s *Server) handleGetLead(w http.ResponseWriter, r *http.Request) {
	row, ok := s.rowParam(w, r)
	if !ok {
		return
	}

	l, err := s.store.Get(row)
	if err != nil {
		s.logger.Error("failed to get lead", "row", row, "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to get lead")
		return
	}
	if l == nil {
		s.sendError(w, http.StatusNotFound, "lead not found")
		return
	}
	s.sendJSON(w, http.StatusOK, l)
}

func (s *Server) handleSendNow(w http.ResponseWriter, r *http.Request) {
	row, ok := s.rowParam(w, r)
	if !ok {
		return
	}

	err := s.dispatcher.Dispatch(r.Context(), dispatch.SendNowRequested{Row: row})
	switch {
	case err == nil:
		s.sendJSON(w, http.StatusOK, SweepResponse{Status: "sent"})
	case errors.Is(err, store.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "lead not found")
	case errors.Is(err, executor.ErrNotRunning),
		errors.Is(err, executor.ErrNothingPending),
		errors.Is(err, executor.ErrInvalidLead):
		s.sendError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("send now failed", "row", row, "error", err)
		s.sendError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) handleStatusEdit(w http.ResponseWriter, r *http.Request) {
	row, ok := s.rowParam(w, r)
	if !ok {
		return
	}

	var req StatusEditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.dispatcher.Dispatch(r.Context(), dispatch.RowEdited{
		Row:    row,
		Column: "status",
		Value:  req.Status,
	})
	switch {
	case err == nil:
		s.sendJSON(w, http.StatusOK, SweepResponse{Status: "updated"})
	case errors.Is(err, store.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "lead not found")
	default:
		s.sendError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if err := s.dispatcher.Dispatch(r.Context(), dispatch.SweepDue{}); err != nil {
		s.logger.Error("manual sweep failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, SweepResponse{Status: "swept"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	leadStats, err := s.store.Stats()
	if err != nil {
		s.logger.Error("failed to read lead stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	triggerStats, err := s.coordinator.Stats()
	if err != nil {
		s.logger.Error("failed to read trigger stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	s.sendJSON(w, http.StatusOK, StatsResponse{Leads: leadStats, Triggers: triggerStats})
}

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	recs, err := s.coordinator.List()
	if err != nil {
		s.logger.Error("failed to list triggers", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to list triggers")
		return
	}
	if recs == nil {
		recs = []*store.TriggerRecord{}
	}
	s.sendJSON(w, http.StatusOK, recs)
}

func (s *Server) handleResetTriggers(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.coordinator.RemoveAll()
	if err != nil {
		s.logger.Error("failed to reset triggers", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to reset triggers")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

func (s *Server) rowParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	row, err := strconv.ParseUint(chi.URLParam(r, "row"), 10, 64)
	if err != nil || row == 0 {
		s.sendError(w, http.StatusBadRequest, "invalid row")
		return 0, false
	}
	return row, true
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, ErrorResponse{Error: msg})
}
