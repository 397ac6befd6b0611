package poller

import (
	"context"
	"math"
	"time"

	"github.com/markcheno/go-talib"

	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
	"github.com/arpan-banerjee/fno-dashboard/internal/enrich"
)

const (
	// IV trend smoothing and grading parameters.
	ivSeriesCap = 60
	ivSmaPeriod = 5
	ivFlatPct   = 0.25 // |change| below this is flat
	ivStrongPct = 3.0  // |change| above this colors at full intensity
	ivMediumPct = 1.0
)

// Exchange timezone; expiries settle at the 15:30 market close.
var marketTZ = time.FixedZone("IST", 5*3600+1800)

// marketClose normalizes an expiry date to its market-close instant.
func marketClose(expiry string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", expiry, marketTZ)
	if err != nil {
		// Callers validate expiries at the API boundary; an unparseable
		// one here degrades to "now", flooring time-to-expiry.
		return time.Now()
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 15, 30, 0, 0, marketTZ)
}

// fetchChain pulls spot and chain from the gateway, substituting the
// deterministic synthetic provider on upstream failure. The returned source
// tag tells subscribers which one they got.
func (m *Manager) fetchChain(ctx context.Context, key domain.ChainKey) (spot float64, chain []domain.RawStrike, source string) {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	spot, err := m.gateway.GetSpotPrice(fetchCtx, key.Instrument)
	if err == nil {
		chain, err = m.gateway.GetOptionChain(fetchCtx, key.Instrument, key.Expiry)
	}
	if err == nil {
		return spot, chain, domain.SourceLive
	}

	m.log.Warn().
		Err(err).
		Str("key", key.String()).
		Msg("Upstream fetch failed, serving synthetic data")

	spot, _ = m.fallback.GetSpotPrice(fetchCtx, key.Instrument)
	chain, _ = m.fallback.GetOptionChain(fetchCtx, key.Instrument, key.Expiry)
	return spot, chain, domain.SourceMock
}

// chainTick runs one chain poll cycle: fetch, snapshot, enrich against the
// previous snapshot, publish. The runner identity check under the manager
// lock guarantees a stopped or replaced poller publishes nothing, even when
// its fetch was already in flight.
func (m *Manager) chainTick(ctx context.Context, key domain.ChainKey, r *runner) {
	spot, chain, source := m.fetchChain(ctx, key)
	if len(chain) == 0 {
		m.log.Warn().Str("key", key.String()).Msg("Empty chain, skipping tick")
		return
	}

	T := m.engine.TimeToExpiryYears(marketClose(key.Expiry))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chain[key] != r || ctx.Err() != nil {
		// Stopped or replaced while fetching; discard the result.
		return
	}

	m.cache.Store(key.String(), chain)
	previous, _ := m.cache.GetPrevious(key.String())

	result := m.pipeline.Enrich(chain, previous, spot, T)

	if m.archive != nil {
		if err := m.archive.Store(key, chain); err != nil {
			m.log.Error().Err(err).Str("key", key.String()).Msg("Failed to archive snapshot")
		}
	}

	payload := domain.EnrichedChainPayload{
		Instrument: key.Instrument,
		Expiry:     key.Expiry,
		SpotPrice:  spot,
		ATMStrike:  result.ATMStrike,
		PCR:        result.PCR,
		Strikes:    result.Strikes,
		Source:     source,
		Timestamp:  time.Now(),
	}

	delivered := m.hub.Publish(domain.ChainChannel(key), payload)
	m.log.Debug().
		Str("key", key.String()).
		Str("source", source).
		Int("delivered", delivered).
		Float64("pcr", result.PCR).
		Msg("Chain tick published")
}

// ivTick runs one IV trend cycle: compute the ATM implied volatility,
// append it to the instrument's series, smooth, grade and publish.
func (m *Manager) ivTick(ctx context.Context, key domain.ChainKey, r *runner) {
	spot, chain, source := m.fetchChain(ctx, key)
	if len(chain) == 0 {
		return
	}

	atmIdx := enrich.FindATM(chain, spot)
	if atmIdx < 0 {
		return
	}
	atm := chain[atmIdx]
	T := m.engine.TimeToExpiryYears(marketClose(key.Expiry))

	// ATM IV as the mean of both sides, ignoring an unquoted side.
	var ivSum float64
	var ivN int
	if atm.CE.LastPrice > 0 {
		ivSum += m.engine.ImpliedVolatility(atm.CE.LastPrice, spot, atm.StrikePrice, T, m.riskFree, domain.SideCall)
		ivN++
	}
	if atm.PE.LastPrice > 0 {
		ivSum += m.engine.ImpliedVolatility(atm.PE.LastPrice, spot, atm.StrikePrice, T, m.riskFree, domain.SidePut)
		ivN++
	}
	if ivN == 0 {
		return
	}
	iv := ivSum / float64(ivN)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.iv[key.Instrument] != r || ctx.Err() != nil {
		return
	}

	r.ivSeries = append(r.ivSeries, iv)
	if len(r.ivSeries) > ivSeriesCap {
		r.ivSeries = r.ivSeries[len(r.ivSeries)-ivSeriesCap:]
	}

	smoothed := smoothIV(r.ivSeries)

	direction := domain.TrendFlat
	var changePct float64
	if r.hasLast && r.lastIV > 0 {
		changePct = (smoothed - r.lastIV) / r.lastIV * 100
		switch {
		case changePct >= ivFlatPct:
			direction = domain.TrendUp
		case changePct <= -ivFlatPct:
			direction = domain.TrendDown
		}
	}
	r.lastIV = smoothed
	r.hasLast = true

	payload := domain.IVTrendPayload{
		Instrument: key.Instrument,
		SpotPrice:  spot,
		ATMStrike:  atm.StrikePrice,
		IV:         iv,
		Direction:  direction,
		ChangePct:  changePct,
		Color:      trendColor(direction, changePct),
		Source:     source,
		Timestamp:  time.Now(),
	}

	delivered := m.hub.Publish(domain.IVChannel(key.Instrument), payload)
	m.log.Debug().
		Str("instrument", key.Instrument.String()).
		Str("direction", string(direction)).
		Float64("iv", iv).
		Int("delivered", delivered).
		Msg("IV tick published")
}

// smoothIV returns the SMA-smoothed tail of the series, or the raw last
// value while the series is still shorter than the smoothing window.
func smoothIV(series []float64) float64 {
	if len(series) < ivSmaPeriod {
		return series[len(series)-1]
	}
	sma := talib.Sma(series, ivSmaPeriod)
	return sma[len(sma)-1]
}

// trendColor grades the move: deeper color for bigger moves, green family
// up, red family down, neutral for flat.
func trendColor(direction domain.TrendDirection, changePct float64) domain.ColorCode {
	magnitude := math.Abs(changePct)

	switch direction {
	case domain.TrendUp:
		switch {
		case magnitude >= ivStrongPct:
			return "#1b5e20"
		case magnitude >= ivMediumPct:
			return "#43a047"
		default:
			return "#a5d6a7"
		}
	case domain.TrendDown:
		switch {
		case magnitude >= ivStrongPct:
			return "#b71c1c"
		case magnitude >= ivMediumPct:
			return "#e53935"
		default:
			return "#ef9a9a"
		}
	}
	return domain.ColorNeutral
}
