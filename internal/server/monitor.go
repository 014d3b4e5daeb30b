package server

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"finsight/internal/logging"
	"finsight/internal/store"
)

// handleMonitorAlerts returns pending alerts newest-first and marks them
// surfaced, so each alert is handed to the client exactly once.
func (s *Server) handleMonitorAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.deps.Store.PendingAlerts(store.DemoUserID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, a := range alerts {
		if err := s.deps.Store.MarkSurfaced(a.ID); err != nil {
			logging.Get(logging.CategoryAPI).Warn("failed to mark alert surfaced",
				zap.Int64("alert_id", a.ID), zap.Error(err))
		}
	}
	if alerts == nil {
		alerts = []store.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleDismissAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid alert id")
		return
	}
	if err := s.deps.Store.DismissAlert(id); err != nil {
		if errors.Is(err, store.ErrAlertNotFound) {
			httpError(w, http.StatusNotFound, "Alert not found")
			return
		}
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// handleMonitorStream pushes live alerts over SSE as the background monitor
// fires them.
func (s *Server) handleMonitorStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Alerts == nil {
		httpError(w, http.StatusNotFound, "monitor disabled")
		return
	}
	stream, ok := newSSEStream(w)
	if !ok {
		httpError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, cancel := s.deps.Alerts.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case alert, open := <-ch:
			if !open {
				return
			}
			if err := stream.send("alert", alert); err != nil {
				return
			}
		}
	}
}
