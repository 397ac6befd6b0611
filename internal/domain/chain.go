// Package domain defines the core market data types shared across the
// pricing, enrichment, caching and streaming layers.
package domain

import (
	"fmt"
	"time"
)

// Side identifies the option side of a quote.
type Side string

const (
	SideCall Side = "CE"
	SidePut  Side = "PE"
)

// Source tags where a published payload came from.
const (
	SourceLive = "live"
	SourceMock = "mock"
)

// ChainKey identifies one polled option chain.
type ChainKey struct {
	Instrument Instrument `json:"instrument"`
	Expiry     string     `json:"expiry"` // YYYY-MM-DD
}

func (k ChainKey) String() string {
	return fmt.Sprintf("%s:%s", k.Instrument, k.Expiry)
}

// ChainChannel returns the broadcast channel carrying enriched chain updates
// for a key.
func ChainChannel(k ChainKey) string {
	return fmt.Sprintf("chain:%s:%s", k.Instrument, k.Expiry)
}

// IVChannel returns the broadcast channel carrying ATM IV trend updates for
// an instrument.
func IVChannel(inst Instrument) string {
	return fmt.Sprintf("iv:%s", inst)
}

// SideQuote holds the raw per-side market data for one strike, as received
// from the upstream provider. Immutable once received.
type SideQuote struct {
	OpenInterest float64 `json:"openInterest"`
	ChangeInOI   float64 `json:"changeinOpenInterest"`
	TotalVolume  float64 `json:"totalTradedVolume"`
	LastPrice    float64 `json:"lastPrice"`
	Change       float64 `json:"change"`
	BidPrice     float64 `json:"bidprice"`
	BidQty       float64 `json:"bidQty"`
	AskPrice     float64 `json:"askPrice"`
	AskQty       float64 `json:"askQty"`
}

// RawStrike is one row of a raw option chain.
type RawStrike struct {
	StrikePrice float64   `json:"strikePrice"`
	CE          SideQuote `json:"CE"`
	PE          SideQuote `json:"PE"`
}

// Quote returns the side quote for the given side.
func (r RawStrike) Quote(side Side) SideQuote {
	if side == SidePut {
		return r.PE
	}
	return r.CE
}

// Greeks holds the analytic Black-Scholes sensitivities for one contract.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// ColorCode is a visual-state token attached to enriched quotes. The empty
// value renders as transparent/neutral.
type ColorCode string

const ColorNeutral ColorCode = "transparent"

// BuiltUpTag classifies price/OI co-movement.
type BuiltUpTag string

const (
	BuiltUpLong       BuiltUpTag = "Long Built-up"
	BuiltUpShort      BuiltUpTag = "Short Build-up"
	BuiltUpLongUnwind BuiltUpTag = "Long Unwind"
	BuiltUpShortCover BuiltUpTag = "Short Cover"
)

// EnrichedSideQuote decorates a raw side quote with derived analytics and
// visual state.
type EnrichedSideQuote struct {
	SideQuote

	IV           float64    `json:"iv"` // Implied volatility, percent
	TimeValue    float64    `json:"timeValue"`
	Greeks       Greeks     `json:"greeks"`
	BuiltUp      BuiltUpTag `json:"builtUp"`
	BuiltUpColor ColorCode  `json:"builtUpColor"`
	VolumeColor  ColorCode  `json:"volumeColor"`
	OIColor      ColorCode  `json:"oiColor"`
	OIFade       bool       `json:"oiFade"`
}

// EnrichedStrike is one fully decorated row of an enriched option chain.
type EnrichedStrike struct {
	StrikePrice float64           `json:"strikePrice"`
	IsATM       bool              `json:"isATM"`
	CE          EnrichedSideQuote `json:"CE"`
	PE          EnrichedSideQuote `json:"PE"`
}

// EnrichedChainPayload is the outbound chain update published to the
// chain:{instrument}:{expiry} channel.
type EnrichedChainPayload struct {
	Instrument Instrument       `json:"instrument"`
	Expiry     string           `json:"expiry"`
	SpotPrice  float64          `json:"spotPrice"`
	ATMStrike  float64          `json:"atmStrike"`
	PCR        float64          `json:"pcr"`
	Strikes    []EnrichedStrike `json:"strikes"`
	Source     string           `json:"source"`
	Timestamp  time.Time        `json:"timestamp"`
}

// TrendDirection classifies the movement of the smoothed ATM IV series.
type TrendDirection string

const (
	TrendUp   TrendDirection = "up"
	TrendDown TrendDirection = "down"
	TrendFlat TrendDirection = "flat"
)

// IVTrendPayload is the outbound update published to the iv:{instrument}
// channel.
type IVTrendPayload struct {
	Instrument Instrument     `json:"instrument"`
	SpotPrice  float64        `json:"spotPrice"`
	ATMStrike  float64        `json:"atmStrike"`
	IV         float64        `json:"iv"`
	Direction  TrendDirection `json:"direction"`
	ChangePct  float64        `json:"changePct"`
	Color      ColorCode      `json:"color"`
	Source     string         `json:"source"`
	Timestamp  time.Time      `json:"timestamp"`
}
