package upstream

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
)

// Synthetic is a deterministic market-data provider. The same
// (instrument, expiry, strike) always yields the same quote, so fallback
// payloads are reproducible and tests can assert on exact values.
type Synthetic struct{}

// NewSynthetic creates the synthetic provider.
func NewSynthetic() *Synthetic {
	return &Synthetic{}
}

var syntheticSpots = map[domain.Instrument]float64{
	domain.InstrumentNifty:      19500,
	domain.InstrumentBankNifty:  44500,
	domain.InstrumentFinNifty:   20100,
	domain.InstrumentMidcpNifty: 10400,
}

// GetSpotPrice returns the fixed synthetic spot for the instrument.
func (s *Synthetic) GetSpotPrice(_ context.Context, instrument domain.Instrument) (float64, error) {
	return syntheticSpots[instrument], nil
}

// GetOptionChain generates a chain of 41 strikes centered on the synthetic
// spot, stepped by the instrument's strike interval.
func (s *Synthetic) GetOptionChain(_ context.Context, instrument domain.Instrument, expiry string) ([]domain.RawStrike, error) {
	spot := syntheticSpots[instrument]
	step := instrument.Info().StrikeStep
	atm := math.Round(spot/step) * step

	const halfWidth = 20
	strikes := make([]domain.RawStrike, 0, 2*halfWidth+1)
	for i := -halfWidth; i <= halfWidth; i++ {
		strike := atm + float64(i)*step
		strikes = append(strikes, domain.RawStrike{
			StrikePrice: strike,
			CE:          syntheticQuote(instrument, expiry, strike, domain.SideCall, spot),
			PE:          syntheticQuote(instrument, expiry, strike, domain.SidePut, spot),
		})
	}
	return strikes, nil
}

// syntheticQuote derives one side quote from a hash of its identity. OI and
// volume peak near the money; premiums decay with distance from spot.
func syntheticQuote(instrument domain.Instrument, expiry string, strike float64, side domain.Side, spot float64) domain.SideQuote {
	seed := seedFor(instrument, expiry, strike, side)

	distance := math.Abs(strike - spot)
	step := instrument.Info().StrikeStep
	proximity := math.Exp(-distance / (10 * step)) // 1 at the money, decaying outward

	var intrinsic float64
	if side == domain.SideCall {
		intrinsic = math.Max(0, spot-strike)
	} else {
		intrinsic = math.Max(0, strike-spot)
	}
	timeValue := 5 + 120*proximity + float64(seed%40)
	last := math.Round((intrinsic+timeValue)*100) / 100

	oi := math.Round(20000*proximity) + float64(seed%5000)
	volume := math.Round(8000*proximity) + float64(seed%3000)

	return domain.SideQuote{
		OpenInterest: oi,
		ChangeInOI:   float64(int64(seed%2001) - 1000),
		TotalVolume:  volume,
		LastPrice:    last,
		Change:       float64(int64(seed%41) - 20),
		BidPrice:     math.Max(0.05, last-0.5),
		BidQty:       float64(50 + seed%500),
		AskPrice:     last + 0.5,
		AskQty:       float64(50 + seed%500),
	}
}

func seedFor(instrument domain.Instrument, expiry string, strike float64, side domain.Side) uint64 {
	h := fnv.New64a()
	h.Write([]byte(instrument.String()))
	h.Write([]byte(expiry))
	h.Write([]byte(side))
	var buf [8]byte
	bits := math.Float64bits(strike)
	for i := 0; i < 8; i++ {
		buf[i] = byte(bits >> (8 * i))
	}
	h.Write(buf[:])
	return h.Sum64()
}
