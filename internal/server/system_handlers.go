package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/arpan-banerjee/fno-dashboard/internal/broadcast"
	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
	"github.com/arpan-banerjee/fno-dashboard/internal/poller"
	"github.com/arpan-banerjee/fno-dashboard/internal/snapshots"
)

// SystemHandlers handles system monitoring endpoints
type SystemHandlers struct {
	log         zerolog.Logger
	startupTime time.Time
	hub         *broadcast.Hub
	pollers     *poller.Manager
	cache       *snapshots.Cache[[]domain.RawStrike]
}

// NewSystemHandlers creates a new system handlers instance
func NewSystemHandlers(log zerolog.Logger, hub *broadcast.Hub, pollers *poller.Manager, cache *snapshots.Cache[[]domain.RawStrike]) *SystemHandlers {
	return &SystemHandlers{
		log:         log.With().Str("component", "system_handlers").Logger(),
		startupTime: time.Now(),
		hub:         hub,
		pollers:     pollers,
		cache:       cache,
	}
}

// HandleHealth reports process health and load
// GET /health
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPct, memPct := h.getSystemStats()

	response := map[string]interface{}{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(h.startupTime).Seconds()),
		"cpuPercent":    cpuPct,
		"memoryPercent": memPct,
		"clients":       h.hub.ClientCount(),
		"pollers":       len(h.pollers.Status()),
		"cachedKeys":    h.cache.Len(),
		"timestamp":     time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to write health response")
	}
}

// getSystemStats calculates CPU and RAM usage percentages
// Uses a short interval (100ms) so the probe responds fast
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
