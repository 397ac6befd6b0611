package poller

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arpan-banerjee/fno-dashboard/internal/broadcast"
	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
	"github.com/arpan-banerjee/fno-dashboard/internal/enrich"
	"github.com/arpan-banerjee/fno-dashboard/internal/pricing"
	"github.com/arpan-banerjee/fno-dashboard/internal/snapshots"
	"github.com/arpan-banerjee/fno-dashboard/internal/upstream"
)

// scriptedGateway serves canned chains, optionally failing or blocking.
type scriptedGateway struct {
	mu       sync.Mutex
	chains   [][]domain.RawStrike // successive responses; last one repeats
	calls    int
	spot     float64
	fail     bool
	blockCh  chan struct{} // when set, GetSpotPrice blocks until closed
	fetching chan struct{} // signalled once a blocked fetch has started
}

func (g *scriptedGateway) GetSpotPrice(ctx context.Context, _ domain.Instrument) (float64, error) {
	g.mu.Lock()
	block := g.blockCh
	fetching := g.fetching
	fail := g.fail
	g.mu.Unlock()

	if block != nil {
		if fetching != nil {
			select {
			case fetching <- struct{}{}:
			default:
			}
		}
		<-block
	}
	if fail {
		return 0, upstream.ErrUnavailable
	}
	return g.spot, nil
}

func (g *scriptedGateway) GetOptionChain(_ context.Context, _ domain.Instrument, _ string) ([]domain.RawStrike, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fail {
		return nil, upstream.ErrUnavailable
	}
	idx := g.calls
	if idx >= len(g.chains) {
		idx = len(g.chains) - 1
	}
	g.calls++
	return g.chains[idx], nil
}

// recordingClient captures published payloads.
type recordingClient struct {
	id   string
	mu   sync.Mutex
	sent [][]byte
}

func (c *recordingClient) ID() string { return c.id }

func (c *recordingClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, payload)
	return nil
}

func (c *recordingClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func (c *recordingClient) chainPayloads(t *testing.T) []domain.EnrichedChainPayload {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	payloads := make([]domain.EnrichedChainPayload, 0, len(c.sent))
	for _, raw := range c.sent {
		var env struct {
			Type string                      `json:"type"`
			Data domain.EnrichedChainPayload `json:"data"`
		}
		require.NoError(t, json.Unmarshal(raw, &env))
		require.Equal(t, "update", env.Type)
		payloads = append(payloads, env.Data)
	}
	return payloads
}

func newTestManager(gateway upstream.Gateway) (*Manager, *broadcast.Hub) {
	engine := pricing.New()
	hub := broadcast.NewHub(zerolog.Nop())
	m := New(Config{
		Gateway:      gateway,
		Pipeline:     enrich.New(engine, 0.07, zerolog.Nop()),
		Engine:       engine,
		Cache:        snapshots.NewCache[[]domain.RawStrike](snapshots.DefaultDepth, snapshots.DefaultTTL),
		Hub:          hub,
		RiskFreeRate: 0.07,
		Log:          zerolog.Nop(),
	})
	return m, hub
}

func tradableStrike(strike, ltp, oi, volume float64) domain.RawStrike {
	return domain.RawStrike{
		StrikePrice: strike,
		CE:          domain.SideQuote{LastPrice: ltp, OpenInterest: oi, TotalVolume: volume},
		PE:          domain.SideQuote{LastPrice: ltp * 0.8, OpenInterest: oi / 2, TotalVolume: volume / 2},
	}
}

var testKey = domain.ChainKey{Instrument: domain.InstrumentNifty, Expiry: "2027-12-30"}

func TestManager_PublishesEnrichedChain(t *testing.T) {
	gateway := &scriptedGateway{
		spot: 19540,
		chains: [][]domain.RawStrike{{
			tradableStrike(19500, 120, 1000, 500),
			tradableStrike(19550, 95, 2000, 700),
			tradableStrike(19600, 70, 1500, 300),
		}},
	}
	m, hub := newTestManager(gateway)
	defer m.Shutdown()

	client := &recordingClient{id: "c1"}
	hub.Subscribe(client, domain.ChainChannel(testKey))

	m.StartChain(testKey, 10*time.Millisecond)

	require.Eventually(t, func() bool { return client.count() >= 1 }, 2*time.Second, 5*time.Millisecond)

	payload := client.chainPayloads(t)[0]
	assert.Equal(t, domain.InstrumentNifty, payload.Instrument)
	assert.Equal(t, "2027-12-30", payload.Expiry)
	assert.Equal(t, domain.SourceLive, payload.Source)
	assert.Equal(t, 19540.0, payload.SpotPrice)
	assert.Equal(t, 19550.0, payload.ATMStrike)
	require.Len(t, payload.Strikes, 3)
	assert.True(t, payload.Strikes[1].IsATM)
	assert.Positive(t, payload.Strikes[1].CE.IV)
	assert.Positive(t, payload.PCR)
}

func TestManager_OIColorTransitionsAcrossTicks(t *testing.T) {
	// Strike 19500 builds OI 1000 -> 1650 (+65%) -> 2800 (+69.7%); strike
	// 19550 pins the side maximum so 19500 is graded on percent change.
	mkChain := func(oi float64) []domain.RawStrike {
		return []domain.RawStrike{
			tradableStrike(19500, 120, oi, 0),
			tradableStrike(19550, 95, 50000, 0),
		}
	}
	gateway := &scriptedGateway{
		spot:   19500,
		chains: [][]domain.RawStrike{mkChain(1000), mkChain(1650), mkChain(2800)},
	}
	m, hub := newTestManager(gateway)
	defer m.Shutdown()

	client := &recordingClient{id: "c1"}
	hub.Subscribe(client, domain.ChainChannel(testKey))

	m.StartChain(testKey, 10*time.Millisecond)
	require.Eventually(t, func() bool { return client.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	m.StopChain(testKey)

	payloads := client.chainPayloads(t)[:3]

	// First tick has no history: neutral.
	assert.Equal(t, domain.ColorNeutral, payloads[0].Strikes[0].CE.OIColor)
	assert.False(t, payloads[0].Strikes[0].CE.OIFade)

	// Both subsequent builds cross the 60% threshold: light increase tint.
	for _, p := range payloads[1:] {
		assert.NotEqual(t, domain.ColorNeutral, p.Strikes[0].CE.OIColor)
		assert.False(t, p.Strikes[0].CE.OIFade)
	}
	assert.Equal(t, payloads[1].Strikes[0].CE.OIColor, payloads[2].Strikes[0].CE.OIColor)
}

func TestManager_OIDropFades(t *testing.T) {
	mkChain := func(oi float64) []domain.RawStrike {
		return []domain.RawStrike{
			tradableStrike(19500, 120, oi, 0),
			tradableStrike(19550, 95, 50000, 0),
		}
	}
	gateway := &scriptedGateway{
		spot:   19500,
		chains: [][]domain.RawStrike{mkChain(2800), mkChain(1000)}, // -64%
	}
	m, hub := newTestManager(gateway)
	defer m.Shutdown()

	client := &recordingClient{id: "c1"}
	hub.Subscribe(client, domain.ChainChannel(testKey))

	m.StartChain(testKey, 10*time.Millisecond)
	require.Eventually(t, func() bool { return client.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	m.StopChain(testKey)

	payloads := client.chainPayloads(t)
	assert.True(t, payloads[1].Strikes[0].CE.OIFade, "-64% OI drop must fade")
}

func TestManager_FallsBackToSyntheticOnUpstreamFailure(t *testing.T) {
	gateway := &scriptedGateway{fail: true}
	m, hub := newTestManager(gateway)
	defer m.Shutdown()

	client := &recordingClient{id: "c1"}
	hub.Subscribe(client, domain.ChainChannel(testKey))

	m.StartChain(testKey, 10*time.Millisecond)
	require.Eventually(t, func() bool { return client.count() >= 1 }, 2*time.Second, 5*time.Millisecond)

	payload := client.chainPayloads(t)[0]
	assert.Equal(t, domain.SourceMock, payload.Source)
	assert.NotEmpty(t, payload.Strikes, "synthetic fallback still carries a full chain")
	assert.Positive(t, payload.SpotPrice)
}

func TestManager_StopSuppressesInFlightTick(t *testing.T) {
	gateway := &scriptedGateway{
		spot:     19500,
		chains:   [][]domain.RawStrike{{tradableStrike(19500, 120, 1000, 100)}},
		blockCh:  make(chan struct{}),
		fetching: make(chan struct{}, 1),
	}
	m, hub := newTestManager(gateway)
	defer m.Shutdown()

	client := &recordingClient{id: "c1"}
	hub.Subscribe(client, domain.ChainChannel(testKey))

	m.StartChain(testKey, 10*time.Millisecond)

	// Wait for the first tick to be parked inside the upstream fetch.
	select {
	case <-gateway.fetching:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never started")
	}

	m.StopChain(testKey)
	close(gateway.blockCh) // let the in-flight fetch complete now

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, client.count(), "no publishes after StopChain returns")
}

func TestManager_StopIsIdempotent(t *testing.T) {
	m, _ := newTestManager(&scriptedGateway{fail: true})
	defer m.Shutdown()

	m.StopChain(testKey) // never started
	m.StartChain(testKey, 10*time.Millisecond)
	m.StopChain(testKey)
	m.StopChain(testKey)

	assert.Empty(t, m.Status())
}

func TestManager_StartReplacesRunningKey(t *testing.T) {
	m, _ := newTestManager(&scriptedGateway{fail: true})
	defer m.Shutdown()

	m.StartChain(testKey, 50*time.Millisecond)
	m.StartChain(testKey, 25*time.Millisecond)

	statuses := m.Status()
	require.Len(t, statuses, 1, "restart must replace, not duplicate")
	assert.Equal(t, int64(25), statuses[0].IntervalMs)
}

func TestManager_StatusListsRunningKeys(t *testing.T) {
	m, _ := newTestManager(&scriptedGateway{fail: true})
	defer m.Shutdown()

	m.StartChain(testKey, 50*time.Millisecond)
	m.StartIV(domain.InstrumentBankNifty, "2027-12-24", 50*time.Millisecond)

	statuses := m.Status()
	require.Len(t, statuses, 2)
	assert.Equal(t, "chain", statuses[0].Kind)
	assert.Equal(t, domain.InstrumentNifty, statuses[0].Instrument)
	assert.Equal(t, "iv", statuses[1].Kind)
	assert.Equal(t, domain.InstrumentBankNifty, statuses[1].Instrument)

	m.StopChain(testKey)
	m.StopIV(domain.InstrumentBankNifty)
	assert.Empty(t, m.Status())
}

func TestManager_DefaultIntervals(t *testing.T) {
	m, _ := newTestManager(&scriptedGateway{fail: true})
	defer m.Shutdown()

	m.StartChain(testKey, 0)
	m.StartIV(domain.InstrumentNifty, "2027-12-30", 0)

	statuses := m.Status()
	require.Len(t, statuses, 2)
	assert.Equal(t, DefaultChainInterval.Milliseconds(), statuses[0].IntervalMs)
	assert.Equal(t, DefaultIVInterval.Milliseconds(), statuses[1].IntervalMs)
}
