package web

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus returns the trading state, the latest verdict and the
// validator baseline ranges.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.pipeline.Status()
	spread, liquidity := s.validator.BaselineRanges()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":    st.State,
		"position": st.Position,
		"verdict":  st.Verdict,
		"baseline": map[string]interface{}{
			"calibrated":    s.validator.Calibrated(),
			"spread_p10":    spread[0],
			"spread_p90":    spread[1],
			"liquidity_p10": liquidity[0],
			"liquidity_p90": liquidity[1],
		},
	})
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	st := s.pipeline.Status()
	if st.Signal == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no signal yet"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"signal":   st.Signal,
		"envelope": st.Envelope,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	st := s.pipeline.Status()
	if st.Metrics == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no metrics yet"})
		return
	}
	s.writeJSON(w, http.StatusOK, st.Metrics)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	trades, err := s.repo.ListPositionHistory(r.Context(), 50)
	if err != nil {
		s.logger.Error("list position history", zap.Error(err))
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage error"})
		return
	}
	s.writeJSON(w, http.StatusOK, trades)
}
