package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/teranos/attrmigrate/am"
	"github.com/teranos/attrmigrate/errors"
	"github.com/teranos/attrmigrate/internal/version"
	"github.com/teranos/attrmigrate/logger"
	"github.com/teranos/attrmigrate/pulse/schedule"
	"github.com/teranos/attrmigrate/runlog"
)

// RunResponse is returned by a manual trigger
type RunResponse struct {
	Message   string              `json:"message"`
	Execution *schedule.Execution `json:"execution,omitempty"`
	Summary   *runlog.Summary     `json:"summary,omitempty"`
}

// ListExecutionsResponse represents the response for listing pass executions
type ListExecutionsResponse struct {
	Executions []*schedule.Execution `json:"executions"`
	Count      int                   `json:"count"`
	Total      int                   `json:"total"`
	HasMore    bool                  `json:"has_more"`
}

// ExecutionEventsResponse lists the run events of one execution
type ExecutionEventsResponse struct {
	ExecutionID string          `json:"execution_id"`
	Events      []runlog.Record `json:"events"`
	Count       int             `json:"count"`
}

// ConversionSettings is the editable conversion configuration
type ConversionSettings struct {
	Attributes      []string `json:"attributes"`
	IntervalSeconds int      `json:"interval_seconds"`
	ItemType        string   `json:"item_type"`
	Warnings        []string `json:"warnings,omitempty"`
}

// UpdateSettingsRequest changes the conversion settings. AttributesText takes
// one name per line and is used when Attributes is absent.
type UpdateSettingsRequest struct {
	Attributes      *[]string `json:"attributes,omitempty"`
	AttributesText  *string   `json:"attributes_text,omitempty"`
	IntervalSeconds *int      `json:"interval_seconds,omitempty"`
}

// HandleHealth serves health check endpoint with version info
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": version.Get(),
	})
}

// HandleRun runs a conversion pass synchronously
// POST /api/conversion/run
func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(s.triggersPerMinute)))
			writeError(w, http.StatusTooManyRequests, "Too many manual triggers, try again later")
			return
		}
	}

	execution, summary, err := s.runner.Execute(r.Context(), schedule.TriggerManual)
	log := logger.LoggerFromContext(r.Context(), s.logger)
	switch {
	case errors.Is(err, errors.ErrPassInProgress):
		log.Infow("Manual trigger refused, pass in progress")
		writeErrorWithHints(w, http.StatusConflict, err)
		return
	case err != nil:
		log.Errorw("Manual conversion pass failed", logger.FieldError, err)
		msg := "Conversion pass failed"
		if execution != nil {
			msg = fmt.Sprintf("Conversion pass failed (execution %s)", execution.ID)
		}
		writeError(w, http.StatusInternalServerError, msg)
		return
	}

	resp := RunResponse{Execution: execution, Summary: summary, Message: runlog.SuccessMessage}
	if summary != nil {
		resp.Message = summary.Message()
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleListExecutions returns execution history, newest first
// GET /api/conversion/executions?limit=20&offset=0&status=completed&trigger=manual
func (s *Server) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	opts := schedule.ListOptions{
		Limit:   parseIntQueryParam(r, "limit", 20, 1, 100),
		Offset:  parseIntQueryParam(r, "offset", 0, 0, 1000000),
		Status:  r.URL.Query().Get("status"),
		Trigger: r.URL.Query().Get("trigger"),
	}

	if opts.Status != "" && !validStatuses[opts.Status] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid status: %s", opts.Status))
		return
	}
	if opts.Trigger != "" && opts.Trigger != schedule.TriggerManual && opts.Trigger != schedule.TriggerScheduled {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid trigger: %s", opts.Trigger))
		return
	}

	executions, total, err := s.executions.ListExecutions(r.Context(), opts)
	if err != nil {
		s.logger.Errorw("Failed to list executions", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Failed to list executions")
		return
	}

	writeJSON(w, http.StatusOK, ListExecutionsResponse{
		Executions: executions,
		Count:      len(executions),
		Total:      total,
		HasMore:    opts.Offset+len(executions) < total,
	})
}

var validStatuses = map[string]bool{
	schedule.ExecutionStatusRunning:   true,
	schedule.ExecutionStatusCompleted: true,
	schedule.ExecutionStatusFailed:    true,
	schedule.ExecutionStatusSkipped:   true,
}

// HandleGetExecution returns one execution
// GET /api/conversion/executions/{id}
func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	execution, ok := s.lookupExecution(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, execution)
}

// HandleExecutionEvents returns the run events recorded for an execution
// GET /api/conversion/executions/{id}/events
func (s *Server) HandleExecutionEvents(w http.ResponseWriter, r *http.Request) {
	execution, ok := s.lookupExecution(w, r)
	if !ok {
		return
	}

	events, err := s.events.ListForExecution(r.Context(), execution.ID)
	if err != nil {
		s.logger.Errorw("Failed to list run events",
			logger.FieldExecutionID, execution.ID,
			logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Failed to list run events")
		return
	}

	writeJSON(w, http.StatusOK, ExecutionEventsResponse{
		ExecutionID: execution.ID,
		Events:      events,
		Count:       len(events),
	})
}

func (s *Server) lookupExecution(w http.ResponseWriter, r *http.Request) (*schedule.Execution, bool) {
	id := r.PathValue("id")
	execution, err := s.executions.GetExecution(r.Context(), id)
	if errors.IsNotFoundError(err) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Execution not found: %s", id))
		return nil, false
	}
	if err != nil {
		s.logger.Errorw("Failed to get execution", logger.FieldExecutionID, id, logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Failed to get execution")
		return nil, false
	}
	return execution, true
}

// HandleGetConfig returns the effective conversion settings
// GET /api/conversion/config
func (s *Server) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := s.currentSettings()
	if err != nil {
		s.logger.Errorw("Failed to load config", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Failed to load config")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// HandlePutConfig persists new conversion settings. A changed interval
// reschedules the job so a pass runs right away.
// PUT /api/conversion/config
func (s *Server) HandlePutConfig(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettingsRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}

	if req.IntervalSeconds != nil && *req.IntervalSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "interval_seconds must be greater than 0")
		return
	}

	before, err := s.currentSettings()
	if err != nil {
		s.logger.Errorw("Failed to load config", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Failed to load config")
		return
	}

	switch {
	case req.Attributes != nil:
		err = s.config.SetAttributes(*req.Attributes)
	case req.AttributesText != nil:
		err = s.config.SetAttributes(am.ParseAttributeList(*req.AttributesText))
	}
	if err != nil {
		s.logger.Errorw("Failed to save attributes", logger.FieldError, err)
		writeError(w, http.StatusInternalServerError, "Failed to save attributes")
		return
	}

	if req.IntervalSeconds != nil {
		if err := s.config.SetInterval(*req.IntervalSeconds); err != nil {
			s.logger.Errorw("Failed to save interval", logger.FieldError, err)
			writeError(w, http.StatusInternalServerError, "Failed to save interval")
			return
		}
		if *req.IntervalSeconds != before.IntervalSeconds && s.rescheduler != nil {
			if err := s.rescheduler.Reschedule(r.Context(), *req.IntervalSeconds); err != nil {
				s.logger.Errorw("Failed to reschedule conversion job", logger.FieldError, err)
				writeError(w, http.StatusInternalServerError, "Settings saved but rescheduling failed")
				return
			}
		}
	}

	after, err := s.currentSettings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load config")
		return
	}
	writeJSON(w, http.StatusOK, after)
}

func (s *Server) currentSettings() (*ConversionSettings, error) {
	cfg, err := s.config.Load()
	if err != nil {
		return nil, err
	}
	settings := &ConversionSettings{}
	for _, w := range cfg.Sanitize() {
		settings.Warnings = append(settings.Warnings, w.Error())
	}
	settings.Attributes = cfg.Conversion.Attributes
	settings.IntervalSeconds = cfg.Conversion.IntervalSeconds
	settings.ItemType = cfg.Conversion.ItemType
	return settings, nil
}

// retryAfterSeconds is the wait until the limiter grants another trigger
func retryAfterSeconds(perMinute int) int {
	return (60 + perMinute - 1) / perMinute
}
