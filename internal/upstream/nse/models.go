package nse

import "github.com/arpan-banerjee/fno-dashboard/internal/domain"

// chainResponse is the top-level shape of /api/option-chain-indices.
type chainResponse struct {
	Records chainRecords `json:"records"`
}

type chainRecords struct {
	ExpiryDates     []string   `json:"expiryDates"`
	Data            []chainRow `json:"data"`
	UnderlyingValue float64    `json:"underlyingValue"`
}

// chainRow is one strike/expiry combination. CE or PE may be absent for
// strikes quoted on one side only; the zero value maps to an empty quote.
type chainRow struct {
	StrikePrice float64   `json:"strikePrice"`
	ExpiryDate  string    `json:"expiryDate"`
	CE          sideQuote `json:"CE"`
	PE          sideQuote `json:"PE"`
}

type sideQuote struct {
	OpenInterest      float64 `json:"openInterest"`
	ChangeInOI        float64 `json:"changeinOpenInterest"`
	TotalTradedVolume float64 `json:"totalTradedVolume"`
	ImpliedVolatility float64 `json:"impliedVolatility"`
	LastPrice         float64 `json:"lastPrice"`
	Change            float64 `json:"change"`
	BidQty            float64 `json:"bidQty"`
	BidPrice          float64 `json:"bidprice"`
	AskQty            float64 `json:"askQty"`
	AskPrice          float64 `json:"askPrice"`
}

func (q sideQuote) toQuote() domain.SideQuote {
	return domain.SideQuote{
		OpenInterest: q.OpenInterest,
		ChangeInOI:   q.ChangeInOI,
		TotalVolume:  q.TotalTradedVolume,
		LastPrice:    q.LastPrice,
		Change:       q.Change,
		BidPrice:     q.BidPrice,
		BidQty:       q.BidQty,
		AskPrice:     q.AskPrice,
		AskQty:       q.AskQty,
	}
}
