package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
)

const defaultHistoryLimit = 10

// pollerRequest is the body for poller start/stop operations.
type pollerRequest struct {
	Kind       string `json:"kind"` // "chain" or "iv"
	Instrument string `json:"instrument"`
	Expiry     string `json:"expiry"`
	IntervalMs int    `json:"intervalMs,omitempty"`
}

// HandleListInstruments lists the supported instrument universe
// GET /api/instruments
func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	type instrumentInfo struct {
		Symbol     string  `json:"symbol"`
		StrikeStep float64 `json:"strikeStep"`
		LotSize    int     `json:"lotSize"`
	}

	instruments := make([]instrumentInfo, 0, 4)
	for _, inst := range domain.AllInstruments() {
		info := inst.Info()
		instruments = append(instruments, instrumentInfo{
			Symbol:     inst.String(),
			StrikeStep: info.StrikeStep,
			LotSize:    info.LotSize,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"instruments": instruments})
}

// HandlePollerStatus lists all running pollers
// GET /api/pollers/status
func (s *Server) handlePollerStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"pollers": s.pollers.Status()})
}

// HandlePollerStart starts a chain or IV poller
// POST /api/pollers/start
func (s *Server) handlePollerStart(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePollerRequest(w, r)
	if !ok {
		return
	}

	instrument, err := domain.ParseInstrument(req.Instrument)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := time.Parse("2006-01-02", req.Expiry); err != nil {
		s.writeError(w, http.StatusBadRequest, "expiry must be YYYY-MM-DD")
		return
	}

	interval := time.Duration(req.IntervalMs) * time.Millisecond

	switch req.Kind {
	case "chain":
		s.pollers.StartChain(domain.ChainKey{Instrument: instrument, Expiry: req.Expiry}, interval)
	case "iv":
		s.pollers.StartIV(instrument, req.Expiry, interval)
	default:
		s.writeError(w, http.StatusBadRequest, "kind must be \"chain\" or \"iv\"")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "started",
		"kind":   req.Kind,
	})
}

// HandlePollerStop stops a chain or IV poller; stopping an idle key is a no-op
// POST /api/pollers/stop
func (s *Server) handlePollerStop(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodePollerRequest(w, r)
	if !ok {
		return
	}

	instrument, err := domain.ParseInstrument(req.Instrument)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch req.Kind {
	case "chain":
		s.pollers.StopChain(domain.ChainKey{Instrument: instrument, Expiry: req.Expiry})
	case "iv":
		s.pollers.StopIV(instrument)
	default:
		s.writeError(w, http.StatusBadRequest, "kind must be \"chain\" or \"iv\"")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "stopped",
		"kind":   req.Kind,
	})
}

// HandleSnapshotHistory returns archived chain snapshots, newest first
// GET /api/snapshots/{instrument}/{expiry}?limit=N
func (s *Server) handleSnapshotHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.writeError(w, http.StatusServiceUnavailable, "snapshot archive not configured")
		return
	}

	instrument, err := domain.ParseInstrument(chi.URLParam(r, "instrument"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	expiry := chi.URLParam(r, "expiry")
	if _, err := time.Parse("2006-01-02", expiry); err != nil {
		s.writeError(w, http.StatusBadRequest, "expiry must be YYYY-MM-DD")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	key := domain.ChainKey{Instrument: instrument, Expiry: expiry}
	history, err := s.archive.History(key, limit)
	if err != nil {
		s.log.Error().Err(err).Str("key", key.String()).Msg("Failed to read snapshot history")
		s.writeError(w, http.StatusInternalServerError, "failed to read snapshot history")
		return
	}

	type snapshot struct {
		CreatedAt time.Time          `json:"createdAt"`
		Strikes   []domain.RawStrike `json:"strikes"`
	}
	out := make([]snapshot, 0, len(history))
	for _, h := range history {
		out = append(out, snapshot{CreatedAt: h.CreatedAt, Strikes: h.Strikes})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"instrument": instrument,
		"expiry":     expiry,
		"snapshots":  out,
	})
}

func (s *Server) decodePollerRequest(w http.ResponseWriter, r *http.Request) (pollerRequest, bool) {
	var req pollerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return req, false
	}
	return req, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
