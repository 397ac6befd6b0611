// Package upstream defines the market-data provider boundary: the Gateway
// interface the pollers call, the shared unavailability error, and a
// deterministic synthetic provider used as a fallback and in development.
package upstream

import (
	"context"
	"errors"

	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
)

// ErrUnavailable is returned when the provider cannot be reached or replies
// unusably. Pollers treat it as non-fatal and fall back to synthetic data.
var ErrUnavailable = errors.New("upstream unavailable")

// Gateway supplies raw market data. Rate limiting, retries and backoff live
// entirely behind this interface; callers issue plain fetches.
type Gateway interface {
	// GetSpotPrice returns the current underlying price.
	GetSpotPrice(ctx context.Context, instrument domain.Instrument) (float64, error)

	// GetOptionChain returns the raw option chain for one expiry.
	// expiry is formatted YYYY-MM-DD.
	GetOptionChain(ctx context.Context, instrument domain.Instrument, expiry string) ([]domain.RawStrike, error)
}
