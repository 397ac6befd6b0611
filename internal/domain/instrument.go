package domain

import (
	"fmt"
	"strings"
)

// Instrument is a supported index underlying. The set is closed: routing,
// upstream symbol mapping and strike stepping all key off this enumeration
// instead of free-form symbol strings.
type Instrument string

const (
	InstrumentNifty      Instrument = "NIFTY"
	InstrumentBankNifty  Instrument = "BANKNIFTY"
	InstrumentFinNifty   Instrument = "FINNIFTY"
	InstrumentMidcpNifty Instrument = "MIDCPNIFTY"
)

// InstrumentInfo describes how an instrument maps onto the upstream provider.
type InstrumentInfo struct {
	UpstreamSymbol string  // Identifier used in upstream API calls
	StrikeStep     float64 // Distance between adjacent strikes
	LotSize        int
}

var instrumentTable = map[Instrument]InstrumentInfo{
	InstrumentNifty:      {UpstreamSymbol: "NIFTY", StrikeStep: 50, LotSize: 25},
	InstrumentBankNifty:  {UpstreamSymbol: "BANKNIFTY", StrikeStep: 100, LotSize: 15},
	InstrumentFinNifty:   {UpstreamSymbol: "FINNIFTY", StrikeStep: 50, LotSize: 40},
	InstrumentMidcpNifty: {UpstreamSymbol: "MIDCPNIFTY", StrikeStep: 25, LotSize: 75},
}

// AllInstruments returns the supported instruments in a stable order.
func AllInstruments() []Instrument {
	return []Instrument{InstrumentNifty, InstrumentBankNifty, InstrumentFinNifty, InstrumentMidcpNifty}
}

// ParseInstrument validates a raw symbol against the closed enumeration.
func ParseInstrument(s string) (Instrument, error) {
	inst := Instrument(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := instrumentTable[inst]; !ok {
		return "", fmt.Errorf("unsupported instrument: %q", s)
	}
	return inst, nil
}

// Info returns the upstream mapping for the instrument.
func (i Instrument) Info() InstrumentInfo {
	return instrumentTable[i]
}

func (i Instrument) String() string {
	return string(i)
}
