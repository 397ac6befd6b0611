package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpan-banerjee/fno-dashboard/internal/broadcast"
	"github.com/arpan-banerjee/fno-dashboard/internal/database"
	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
	"github.com/arpan-banerjee/fno-dashboard/internal/enrich"
	"github.com/arpan-banerjee/fno-dashboard/internal/poller"
	"github.com/arpan-banerjee/fno-dashboard/internal/pricing"
	"github.com/arpan-banerjee/fno-dashboard/internal/snapshots"
	"github.com/arpan-banerjee/fno-dashboard/internal/upstream"
)

func newTestServer(t *testing.T) (*Server, *poller.Manager) {
	t.Helper()

	engine := pricing.New()
	hub := broadcast.NewHub(zerolog.Nop())
	cache := snapshots.NewCache[[]domain.RawStrike](snapshots.DefaultDepth, snapshots.DefaultTTL)

	db, err := database.New(database.Config{Path: "file:server_test?mode=memory&cache=shared", Name: "test"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	archive, err := snapshots.NewArchive(db, time.Hour)
	require.NoError(t, err)

	pollers := poller.New(poller.Config{
		Gateway:      upstream.NewSynthetic(),
		Pipeline:     enrich.New(engine, 0.07, zerolog.Nop()),
		Engine:       engine,
		Cache:        cache,
		Archive:      archive,
		Hub:          hub,
		RiskFreeRate: 0.07,
		Log:          zerolog.Nop(),
	})
	t.Cleanup(pollers.Shutdown)

	s := New(Config{
		Log:         zerolog.Nop(),
		Port:        0,
		CORSOrigins: "*",
		Hub:         hub,
		Pollers:     pollers,
		Cache:       cache,
		Archive:     archive,
	})
	return s, pollers
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleListInstruments(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s.Router(), http.MethodGet, "/api/instruments", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Instruments []struct {
			Symbol     string  `json:"symbol"`
			StrikeStep float64 `json:"strikeStep"`
			LotSize    int     `json:"lotSize"`
		} `json:"instruments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Instruments, 4)
	assert.Equal(t, "NIFTY", resp.Instruments[0].Symbol)
	assert.Equal(t, 50.0, resp.Instruments[0].StrikeStep)
}

func TestPollerLifecycleOverHTTP(t *testing.T) {
	s, pollers := newTestServer(t)

	rec := doJSON(t, s.Router(), http.MethodPost, "/api/pollers/start", map[string]interface{}{
		"kind":       "chain",
		"instrument": "NIFTY",
		"expiry":     "2027-12-30",
		"intervalMs": 60000,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pollers.Status(), 1)

	rec = doJSON(t, s.Router(), http.MethodGet, "/api/pollers/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		Pollers []poller.Status `json:"pollers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Len(t, status.Pollers, 1)
	assert.Equal(t, "chain", status.Pollers[0].Kind)
	assert.Equal(t, domain.InstrumentNifty, status.Pollers[0].Instrument)

	rec = doJSON(t, s.Router(), http.MethodPost, "/api/pollers/stop", map[string]interface{}{
		"kind":       "chain",
		"instrument": "NIFTY",
		"expiry":     "2027-12-30",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, pollers.Status())
}

func TestPollerStart_Validation(t *testing.T) {
	s, pollers := newTestServer(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"unknown instrument", map[string]interface{}{"kind": "chain", "instrument": "DOWJONES", "expiry": "2027-12-30"}},
		{"bad expiry", map[string]interface{}{"kind": "chain", "instrument": "NIFTY", "expiry": "30-12-2027"}},
		{"bad kind", map[string]interface{}{"kind": "turbo", "instrument": "NIFTY", "expiry": "2027-12-30"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, s.Router(), http.MethodPost, "/api/pollers/start", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
	assert.Empty(t, pollers.Status())
}

func TestSnapshotHistoryEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	key := domain.ChainKey{Instrument: domain.InstrumentNifty, Expiry: "2027-12-30"}
	require.NoError(t, s.archive.Store(key, []domain.RawStrike{{
		StrikePrice: 19500,
		CE:          domain.SideQuote{LastPrice: 120, OpenInterest: 1000},
	}}))

	rec := doJSON(t, s.Router(), http.MethodGet, "/api/snapshots/NIFTY/2027-12-30", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Snapshots []struct {
			CreatedAt time.Time          `json:"createdAt"`
			Strikes   []domain.RawStrike `json:"strikes"`
		} `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Snapshots, 1)
	assert.Equal(t, 19500.0, resp.Snapshots[0].Strikes[0].StrikePrice)
}

func TestSnapshotHistory_Validation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s.Router(), http.MethodGet, "/api/snapshots/DOWJONES/2027-12-30", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, s.Router(), http.MethodGet, "/api/snapshots/NIFTY/soon", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doJSON(t, s.Router(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Contains(t, resp, "cpuPercent")
	assert.Contains(t, resp, "memoryPercent")
}
