package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kkrriders/airra/internal/models"
	"github.com/kkrriders/airra/internal/store"
)

// errorBody is the uniform error envelope.
type errorBody struct {
	ErrorKind string `json:"error_kind"`
	Message   string `json:"message"`
}

// incidentDetail embeds everything an operator needs to judge one incident.
type incidentDetail struct {
	Incident   *models.Incident        `json:"incident"`
	Hypotheses []*models.Hypothesis    `json:"hypotheses"`
	Actions    []*models.Action        `json:"actions"`
	Timeline   []*models.TimelineEvent `json:"timeline"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, errorBody{ErrorKind: kind, Message: message})
}

// writeStoreError maps persistence errors onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, store.ErrStaleState):
		s.writeError(w, http.StatusConflict, "stale_state", err.Error())
	case errors.Is(err, store.ErrAlreadyProposed):
		s.writeError(w, http.StatusConflict, "duplicate", err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "external_unavailable", "store unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	incidents, err := s.store.ListIncidents(r.Context(), limit, offset)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if incidents == nil {
		incidents = []*models.Incident{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

func (s *Server) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()

	inc, err := s.store.GetIncident(ctx, id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	hyps, err := s.store.HypothesesFor(ctx, id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	actions, err := s.store.ActionsFor(ctx, id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	timeline, err := s.store.TimelineFor(ctx, id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, incidentDetail{
		Incident:   inc,
		Hypotheses: hyps,
		Actions:    actions,
		Timeline:   timeline,
	})
}

func (s *Server) handleEscalateIncident(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Operator string `json:"operator"`
		Reason   string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}
	if req.Reason == "" {
		req.Reason = "operator_escalation"
	}

	ctx := r.Context()
	inc, err := s.store.GetIncident(ctx, id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if inc.Status.Terminal() {
		s.writeError(w, http.StatusConflict, "stale_state", "incident is already terminal")
		return
	}
	if err := s.store.TransitionIncident(ctx, id, inc.Status, models.IncidentEscalated, req.Reason); err != nil {
		s.writeStoreError(w, err)
		return
	}
	inc.Status = models.IncidentEscalated
	inc.StatusReason = req.Reason
	_ = s.audit.LogIncidentEscalated(ctx, id, req.Reason)
	s.hub.NotifyIncident(inc)
	s.writeJSON(w, http.StatusOK, inc)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var fb models.OperatorFeedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}
	if fb.Type == "" {
		s.writeError(w, http.StatusBadRequest, "bad_request", "feedback_type is required")
		return
	}

	ctx := r.Context()
	if _, err := s.store.GetIncident(ctx, id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	fb.IncidentID = id
	fb.Timestamp = time.Now().UTC()
	if err := s.feedback.Append(fb); err != nil {
		s.logger.Error("feedback append failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal", "could not record feedback")
		return
	}
	s.writeJSON(w, http.StatusCreated, fb)
}

func (s *Server) handlePendingApprovals(w http.ResponseWriter, r *http.Request) {
	pending, err := s.store.ListPendingActions(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if pending == nil {
		pending = []*models.Action{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	actionID := mux.Vars(r)["action_id"]
	var req struct {
		By            string               `json:"by"`
		ApprovedBy    string               `json:"approved_by"` // legacy alias for by
		ExecutionMode models.ExecutionMode `json:"execution_mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}
	if req.By == "" {
		req.By = req.ApprovedBy
	}
	if req.By == "" {
		s.writeError(w, http.StatusBadRequest, "bad_request", "by is required")
		return
	}
	if req.ExecutionMode == "" {
		req.ExecutionMode = models.ModeDryRun
	}
	if req.ExecutionMode != models.ModeDryRun && req.ExecutionMode != models.ModeLive {
		s.writeError(w, http.StatusBadRequest, "bad_request", "execution_mode must be dry_run or live")
		return
	}

	ctx := r.Context()
	action, err := s.store.ApproveAction(ctx, actionID, req.By, req.ExecutionMode)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	_ = s.audit.LogActionApproved(ctx, action.IncidentID, action.ID, req.By)
	s.hub.NotifyAction(action)
	s.runner.ExecuteApproved(ctx, action.ID)
	s.writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	actionID := mux.Vars(r)["action_id"]
	var req struct {
		By         string `json:"by"`
		RejectedBy string `json:"rejected_by"` // legacy alias for by
		Reason     string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}
	if req.By == "" {
		req.By = req.RejectedBy
	}
	if req.By == "" {
		s.writeError(w, http.StatusBadRequest, "bad_request", "by is required")
		return
	}

	ctx := r.Context()
	action, err := s.store.RejectAction(ctx, actionID, req.By, req.Reason)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	_ = s.audit.LogActionRejected(ctx, action.IncidentID, action.ID, req.By, req.Reason)

	// A rejected action leaves the incident for the operators.
	if inc, err := s.store.GetIncident(ctx, action.IncidentID); err == nil && !inc.Status.Terminal() {
		if err := s.store.TransitionIncident(ctx, inc.ID, inc.Status, models.IncidentEscalated, "action_rejected"); err == nil {
			inc.Status = models.IncidentEscalated
			_ = s.audit.LogIncidentEscalated(ctx, inc.ID, "action_rejected")
			s.hub.NotifyIncident(inc)
		}
	}
	s.hub.NotifyAction(action)
	s.writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleCalibration(w http.ResponseWriter, _ *http.Request) {
	report, err := s.outcomes.Calibration()
	if err != nil {
		s.logger.Error("calibration read failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal", "could not compute calibration")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}
