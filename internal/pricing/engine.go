// Package pricing implements closed-form Black-Scholes option pricing,
// analytic Greeks and an iterative implied-volatility solver.
package pricing

import (
	"math"
	"time"

	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
)

const (
	ivInitialGuess = 0.30
	ivTolerance    = 1e-4
	ivMaxIter      = 100
	ivVegaFloor    = 1e-4
	ivMin          = 0.01
	ivMax          = 5.0

	// Minimum time to expiry: one hour, expressed in years. Same-day
	// expiries would otherwise divide by zero.
	minYears = 1.0 / (365.0 * 24.0)
)

// Engine performs option pricing and implied-volatility solving. The zero
// value is not usable; construct with New.
type Engine struct {
	now func() time.Time
}

// New creates a pricing engine using the real clock.
func New() *Engine {
	return &Engine{now: time.Now}
}

// NewWithClock creates a pricing engine with an injectable clock for tests.
func NewWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Price returns the Black-Scholes price of a European option.
// S is the spot price, K the strike, r the risk-free rate, sigma the
// volatility (fractional, not percent) and T the time to expiry in years.
func (e *Engine) Price(side domain.Side, S, K, r, sigma, T float64) float64 {
	if T <= 0 || sigma <= 0 {
		return intrinsic(side, S, K)
	}

	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
	d2 := d1 - sigma*math.Sqrt(T)

	if side == domain.SidePut {
		return K*math.Exp(-r*T)*normCDF(-d2) - S*normCDF(-d1)
	}
	return S*normCDF(d1) - K*math.Exp(-r*T)*normCDF(d2)
}

// ImpliedVolatility solves for the volatility implied by a market price via
// Newton-Raphson. It never fails: if the solver cannot converge it returns
// the last iterate. The result is scaled to a percentage.
func (e *Engine) ImpliedVolatility(marketPrice, S, K, T, r float64, side domain.Side) float64 {
	sigma := ivInitialGuess

	for i := 0; i < ivMaxIter; i++ {
		price := e.Price(side, S, K, r, sigma, T)
		diff := price - marketPrice
		if math.Abs(diff) < ivTolerance {
			break
		}

		// Vega quoted per 1% vol move, matching how chains report it.
		d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * math.Sqrt(T))
		vega := S * normPDF(d1) * math.Sqrt(T) / 100
		if vega < ivVegaFloor {
			// Flat-vega region, Newton steps cannot make progress.
			break
		}

		sigma -= diff / (vega * 100)
		if sigma < ivMin {
			sigma = ivMin
		} else if sigma > ivMax {
			sigma = ivMax
		}
	}

	return sigma * 100
}

// TimeValue returns the extrinsic component of a premium, floored at zero.
func (e *Engine) TimeValue(premium, S, K float64, side domain.Side) float64 {
	tv := premium - intrinsic(side, S, K)
	if tv < 0 {
		return 0
	}
	return tv
}

// TimeToExpiryYears returns the year fraction between now and the expiry's
// market close, floored at one hour.
func (e *Engine) TimeToExpiryYears(expiry time.Time) float64 {
	years := expiry.Sub(e.now()).Hours() / 24 / 365
	if years < minYears {
		return minYears
	}
	return years
}

func intrinsic(side domain.Side, S, K float64) float64 {
	var v float64
	if side == domain.SidePut {
		v = K - S
	} else {
		v = S - K
	}
	if v < 0 {
		return 0
	}
	return v
}

// normCDF approximates the standard normal CDF with the Zelen & Severo
// rational polynomial (Abramowitz & Stegun 26.2.17), accurate to ~7.5e-8.
func normCDF(x float64) float64 {
	if x < 0 {
		return 1 - normCDF(-x)
	}

	k := 1.0 / (1.0 + 0.2316419*x)
	poly := k * (0.319381530 + k*(-0.356563782+k*(1.781477937+k*(-1.821255978+k*1.330274429))))
	return 1 - normPDF(x)*poly
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}
