package pricing

import (
	"math"

	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
)

// Greeks returns the analytic Black-Scholes sensitivities for a contract.
// Theta is quoted per calendar day, vega and rho per 1% move, matching the
// conventions used on option chains.
//
// For T <= 0 the contract has no optionality left: delta collapses to 1/0
// (call) or -1/0 (put) on moneyness, every other greek is 0.
func (e *Engine) Greeks(side domain.Side, S, K, r, sigma, T float64) domain.Greeks {
	if T <= 0 {
		return expiredGreeks(side, S, K)
	}

	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	pdfD1 := normPDF(d1)
	discount := K * math.Exp(-r*T)

	g := domain.Greeks{
		Gamma: pdfD1 / (S * sigma * sqrtT),
		Vega:  S * pdfD1 * sqrtT / 100,
	}

	if side == domain.SidePut {
		g.Delta = normCDF(d1) - 1
		g.Theta = (-S*pdfD1*sigma/(2*sqrtT) + r*discount*normCDF(-d2)) / 365
		g.Rho = -discount * T * normCDF(-d2) / 100
	} else {
		g.Delta = normCDF(d1)
		g.Theta = (-S*pdfD1*sigma/(2*sqrtT) - r*discount*normCDF(d2)) / 365
		g.Rho = discount * T * normCDF(d2) / 100
	}

	return g
}

func expiredGreeks(side domain.Side, S, K float64) domain.Greeks {
	var g domain.Greeks
	if side == domain.SidePut {
		if S < K {
			g.Delta = -1
		}
	} else {
		if S > K {
			g.Delta = 1
		}
	}
	return g
}
