package server

import (
	"net/http"

	"finsight/internal/store"
)

// handleAdvisorReport generates (or serves the cached) advisor report.
func (s *Server) handleAdvisorReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Advisor.Generate(r.Context(), store.DemoUserID, s.deps.Rules.Current())
	if err != nil {
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
