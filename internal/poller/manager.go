// Package poller owns one independent timer per polled key. Each tick
// fetches upstream data, enriches it against the previous snapshot and
// publishes the result; ticks for a key are strictly sequential and a slow
// upstream call delays, never reorders, that key's next tick.
package poller

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arpan-banerjee/fno-dashboard/internal/broadcast"
	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
	"github.com/arpan-banerjee/fno-dashboard/internal/enrich"
	"github.com/arpan-banerjee/fno-dashboard/internal/pricing"
	"github.com/arpan-banerjee/fno-dashboard/internal/snapshots"
	"github.com/arpan-banerjee/fno-dashboard/internal/upstream"
)

const (
	// DefaultChainInterval is the default chain polling cadence.
	DefaultChainInterval = 5 * time.Second
	// DefaultIVInterval is the default IV trend polling cadence.
	DefaultIVInterval = 10 * time.Second

	fetchTimeout = 10 * time.Second
)

// Status describes one running poller for operational visibility.
type Status struct {
	Kind       string            `json:"kind"` // "chain" or "iv"
	Instrument domain.Instrument `json:"instrument"`
	Expiry     string            `json:"expiry,omitempty"`
	IntervalMs int64             `json:"intervalMs"`
}

// runner is the handle to one active polling goroutine. Replacing or
// removing the map entry invalidates the runner: its in-flight tick sees a
// different handle registered and discards its result.
type runner struct {
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration

	// IV trend state, owned by the manager mutex.
	ivSeries []float64
	lastIV   float64
	hasLast  bool
}

// Config wires a Manager's collaborators.
type Config struct {
	Gateway      upstream.Gateway
	Fallback     *upstream.Synthetic
	Pipeline     *enrich.Pipeline
	Engine       *pricing.Engine
	Cache        *snapshots.Cache[[]domain.RawStrike]
	Archive      *snapshots.Archive // optional
	Hub          *broadcast.Hub
	RiskFreeRate float64 // fractional, e.g. 0.07
	Log          zerolog.Logger
}

// Manager starts, stops and supervises per-key pollers. Construct with New;
// instances are independent, nothing is shared through package state.
type Manager struct {
	gateway  upstream.Gateway
	fallback *upstream.Synthetic
	pipeline *enrich.Pipeline
	engine   *pricing.Engine
	cache    *snapshots.Cache[[]domain.RawStrike]
	archive  *snapshots.Archive
	hub      *broadcast.Hub
	riskFree float64
	log      zerolog.Logger

	mu    sync.Mutex
	chain map[domain.ChainKey]*runner
	iv    map[domain.Instrument]*runner
}

// New creates a poller manager.
func New(cfg Config) *Manager {
	fallback := cfg.Fallback
	if fallback == nil {
		fallback = upstream.NewSynthetic()
	}
	return &Manager{
		gateway:  cfg.Gateway,
		fallback: fallback,
		pipeline: cfg.Pipeline,
		engine:   cfg.Engine,
		cache:    cfg.Cache,
		archive:  cfg.Archive,
		hub:      cfg.Hub,
		riskFree: cfg.RiskFreeRate,
		log:      cfg.Log.With().Str("component", "poller").Logger(),
		chain:    make(map[domain.ChainKey]*runner),
		iv:       make(map[domain.Instrument]*runner),
	}
}

// StartChain begins polling a chain key. The first tick runs immediately.
// Starting an already-running key atomically replaces its timer: the old
// poller is cancelled and any in-flight result it holds is discarded.
func (m *Manager) StartChain(key domain.ChainKey, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultChainInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{cancel: cancel, done: make(chan struct{}), interval: interval}

	m.mu.Lock()
	if old, ok := m.chain[key]; ok {
		old.cancel()
		m.log.Info().Str("key", key.String()).Msg("Restarting chain poller")
	}
	m.chain[key] = r
	m.mu.Unlock()

	m.log.Info().
		Str("key", key.String()).
		Dur("interval", interval).
		Msg("Chain poller started")

	go m.run(ctx, r, func(tickCtx context.Context) {
		m.chainTick(tickCtx, key, r)
	})
}

// StopChain cancels a chain poller. Stopping a key that is not running is a
// no-op. Once StopChain returns no further publishes happen for the key,
// even if a fetch is still in flight.
func (m *Manager) StopChain(key domain.ChainKey) {
	m.mu.Lock()
	r, ok := m.chain[key]
	if ok {
		delete(m.chain, key)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	r.cancel()
	m.log.Info().Str("key", key.String()).Msg("Chain poller stopped")
}

// StartIV begins IV trend polling for an instrument against one expiry.
// Restart semantics match StartChain.
func (m *Manager) StartIV(instrument domain.Instrument, expiry string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultIVInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &runner{cancel: cancel, done: make(chan struct{}), interval: interval}

	key := domain.ChainKey{Instrument: instrument, Expiry: expiry}

	m.mu.Lock()
	if old, ok := m.iv[instrument]; ok {
		old.cancel()
		m.log.Info().Str("instrument", instrument.String()).Msg("Restarting IV poller")
	}
	m.iv[instrument] = r
	m.mu.Unlock()

	m.log.Info().
		Str("instrument", instrument.String()).
		Str("expiry", expiry).
		Dur("interval", interval).
		Msg("IV poller started")

	go m.run(ctx, r, func(tickCtx context.Context) {
		m.ivTick(tickCtx, key, r)
	})
}

// StopIV cancels an instrument's IV poller; idempotent.
func (m *Manager) StopIV(instrument domain.Instrument) {
	m.mu.Lock()
	r, ok := m.iv[instrument]
	if ok {
		delete(m.iv, instrument)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	r.cancel()
	m.log.Info().Str("instrument", instrument.String()).Msg("IV poller stopped")
}

// Status lists all running pollers in a stable order.
func (m *Manager) Status() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]Status, 0, len(m.chain)+len(m.iv))
	for key, r := range m.chain {
		statuses = append(statuses, Status{
			Kind:       "chain",
			Instrument: key.Instrument,
			Expiry:     key.Expiry,
			IntervalMs: r.interval.Milliseconds(),
		})
	}
	for instrument, r := range m.iv {
		statuses = append(statuses, Status{
			Kind:       "iv",
			Instrument: instrument,
			IntervalMs: r.interval.Milliseconds(),
		})
	}

	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Kind != statuses[j].Kind {
			return statuses[i].Kind < statuses[j].Kind
		}
		if statuses[i].Instrument != statuses[j].Instrument {
			return statuses[i].Instrument < statuses[j].Instrument
		}
		return statuses[i].Expiry < statuses[j].Expiry
	})
	return statuses
}

// Shutdown stops every poller and waits for their goroutines to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	runners := make([]*runner, 0, len(m.chain)+len(m.iv))
	for key, r := range m.chain {
		r.cancel()
		runners = append(runners, r)
		delete(m.chain, key)
	}
	for instrument, r := range m.iv {
		r.cancel()
		runners = append(runners, r)
		delete(m.iv, instrument)
	}
	m.mu.Unlock()

	for _, r := range runners {
		<-r.done
	}
	m.log.Info().Msg("All pollers stopped")
}

// run executes ticks strictly sequentially: the next wait only starts once
// the previous tick finished, so a slow upstream call delays rather than
// overlaps the key's schedule.
func (m *Manager) run(ctx context.Context, r *runner, tick func(context.Context)) {
	defer close(r.done)

	for {
		m.safeTick(ctx, tick)

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}
	}
}

// safeTick isolates a tick: any panic is logged at the tick boundary and
// scheduling continues.
func (m *Manager) safeTick(ctx context.Context, tick func(context.Context)) {
	defer func() {
		if rec := recover(); rec != nil {
			m.log.Error().Interface("panic", rec).Msg("Tick panicked, continuing")
		}
	}()

	if ctx.Err() != nil {
		return
	}
	tick(ctx)
}
