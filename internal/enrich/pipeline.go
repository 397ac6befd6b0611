// Package enrich turns raw option chains into the decision-ready view:
// implied volatility, Greeks, time value, built-up classification, visual
// color state, ATM flagging and the put-call ratio.
package enrich

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
	"github.com/arpan-banerjee/fno-dashboard/internal/pricing"
)

// WindowRadius is how many strikes either side of ATM survive windowing,
// for a window of at most 2*WindowRadius+1 strikes.
const WindowRadius = 15

// SideMaxima holds the per-side maximum of a scanned quantity.
type SideMaxima struct {
	CE float64
	PE float64
}

// Result is the output of one enrichment pass.
type Result struct {
	Strikes   []domain.EnrichedStrike
	ATMStrike float64
	PCR       float64
}

// Pipeline orchestrates per-strike enrichment against the pricing engine
// and the previous snapshot.
type Pipeline struct {
	engine       *pricing.Engine
	riskFreeRate float64
	log          zerolog.Logger
}

// New creates an enrichment pipeline. riskFreeRate is fractional (0.07 for 7%).
func New(engine *pricing.Engine, riskFreeRate float64, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		engine:       engine,
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("component", "enrich").Logger(),
	}
}

// FindATM returns the index of the strike nearest the spot price. Strikes
// arrive sorted ascending, and a strictly-smaller distance is required to
// displace the running minimum, so the lower strike wins exact ties.
// Returns -1 for an empty chain.
func FindATM(strikes []domain.RawStrike, spot float64) int {
	atm := -1
	best := math.MaxFloat64
	for i, s := range strikes {
		d := math.Abs(s.StrikePrice - spot)
		if d < best {
			best = d
			atm = i
		}
	}
	return atm
}

// WindowAroundATM slices the chain to [atm-radius, atm+radius+1) clamped to
// bounds. If no ATM can be determined the first 2*radius+1 strikes are kept.
// The returned window offset locates the window inside the full chain.
func WindowAroundATM(strikes []domain.RawStrike, spot float64, radius int) ([]domain.RawStrike, int) {
	if len(strikes) == 0 {
		return nil, 0
	}

	atm := FindATM(strikes, spot)
	if atm < 0 {
		limit := 2*radius + 1
		if limit > len(strikes) {
			limit = len(strikes)
		}
		return strikes[:limit], 0
	}

	lo := atm - radius
	if lo < 0 {
		lo = 0
	}
	hi := atm + radius + 1
	if hi > len(strikes) {
		hi = len(strikes)
	}
	return strikes[lo:hi], lo
}

// HighestVolume returns the per-side maximum traded volume over the strikes.
func HighestVolume(strikes []domain.RawStrike) SideMaxima {
	var m SideMaxima
	for _, s := range strikes {
		if s.CE.TotalVolume > m.CE {
			m.CE = s.CE.TotalVolume
		}
		if s.PE.TotalVolume > m.PE {
			m.PE = s.PE.TotalVolume
		}
	}
	return m
}

// HighestOI returns the per-side maximum open interest over the strikes.
func HighestOI(strikes []domain.RawStrike) SideMaxima {
	var m SideMaxima
	for _, s := range strikes {
		if s.CE.OpenInterest > m.CE {
			m.CE = s.CE.OpenInterest
		}
		if s.PE.OpenInterest > m.PE {
			m.PE = s.PE.OpenInterest
		}
	}
	return m
}

// PCR returns total put OI over total call OI, or 0 when the call side sums
// to zero.
func PCR(strikes []domain.RawStrike) float64 {
	var callOI, putOI float64
	for _, s := range strikes {
		callOI += s.CE.OpenInterest
		putOI += s.PE.OpenInterest
	}
	if callOI == 0 {
		return 0
	}
	return putOI / callOI
}

// Enrich produces the fully decorated chain for one tick. rawChain is the
// full chain as fetched; previous is the last stored raw chain for the same
// key (nil on cache miss, which leaves all percent-based state neutral).
// T is the time to expiry in years.
func (p *Pipeline) Enrich(rawChain, previous []domain.RawStrike, spot, T float64) Result {
	window, offset := WindowAroundATM(rawChain, spot, WindowRadius)
	if len(window) == 0 {
		return Result{}
	}

	atmIdx := FindATM(rawChain, spot) - offset
	highestVol := HighestVolume(window)
	highestOI := HighestOI(window)

	// Previous quotes are matched by strike: window bounds can drift
	// between ticks when spot moves.
	prevByStrike := make(map[float64]domain.RawStrike, len(previous))
	for _, s := range previous {
		prevByStrike[s.StrikePrice] = s
	}

	enriched := make([]domain.EnrichedStrike, len(window))
	for i, raw := range window {
		prev, hasPrev := prevByStrike[raw.StrikePrice]

		row := domain.EnrichedStrike{
			StrikePrice: raw.StrikePrice,
			IsATM:       i == atmIdx,
		}
		row.CE = p.enrichSide(domain.SideCall, raw, prev, hasPrev, spot, T,
			highestVol.CE, highestOI.CE)
		row.PE = p.enrichSide(domain.SidePut, raw, prev, hasPrev, spot, T,
			highestVol.PE, highestOI.PE)
		enriched[i] = row
	}

	var atmStrike float64
	if atmIdx >= 0 && atmIdx < len(window) {
		atmStrike = window[atmIdx].StrikePrice
	}

	return Result{
		Strikes:   enriched,
		ATMStrike: atmStrike,
		PCR:       PCR(window),
	}
}

func (p *Pipeline) enrichSide(side domain.Side, raw, prev domain.RawStrike, hasPrev bool, spot, T, highestVol, highestOI float64) domain.EnrichedSideQuote {
	quote := raw.Quote(side)
	strike := raw.StrikePrice

	out := domain.EnrichedSideQuote{SideQuote: quote}

	out.IV = p.engine.ImpliedVolatility(quote.LastPrice, spot, strike, T, p.riskFreeRate, side)
	out.TimeValue = p.engine.TimeValue(quote.LastPrice, spot, strike, side)
	out.Greeks = p.engine.Greeks(side, spot, strike, p.riskFreeRate, out.IV/100, T)
	out.BuiltUp, out.BuiltUpColor = ClassifyBuiltUp(quote.ChangeInOI, quote.Change)

	var prevVolume, prevOI float64
	if hasPrev {
		prevQuote := prev.Quote(side)
		prevVolume = prevQuote.TotalVolume
		prevOI = prevQuote.OpenInterest
	}
	out.VolumeColor = VolumeColor(quote.TotalVolume, prevVolume, highestVol, side)
	out.OIColor, out.OIFade = OIColor(quote.OpenInterest, prevOI, highestOI, side)

	return out
}
