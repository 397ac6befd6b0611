// Package nse implements the upstream Gateway against the NSE India public
// option-chain API. All requests flow through a single rate-limited worker
// so callers never have to think about provider limits.
package nse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arpan-banerjee/fno-dashboard/internal/domain"
	"github.com/arpan-banerjee/fno-dashboard/internal/upstream"
)

const (
	baseURL          = "https://www.nseindia.com"
	rateLimitDelay   = 800 * time.Millisecond // Minimum spacing between requests
	requestQueueSize = 64
	requestTimeout   = 15 * time.Second

	// The API rejects requests without a browser-ish user agent and the
	// cookies set by the landing page.
	userAgent       = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	cookieMaxAge    = 5 * time.Minute
	chainSpotMaxAge = 30 * time.Second
)

// requestJob is one queued fetch.
type requestJob struct {
	ctx        context.Context
	instrument domain.Instrument
	resultCh   chan requestResult
}

type requestResult struct {
	records chainRecords
	err     error
}

// Client is the rate-limited NSE API client.
type Client struct {
	httpClient   *http.Client
	log          zerolog.Logger
	requestQueue chan requestJob
	stopChan     chan struct{}
	workerDone   chan struct{}
	once         sync.Once

	mu           sync.Mutex
	cookiesSetAt time.Time
	lastSpot     map[domain.Instrument]spotSample
}

type spotSample struct {
	value float64
	at    time.Time
}

// New creates an NSE client and starts its rate-limiting worker.
func New(log zerolog.Logger) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
			Jar:     jar,
		},
		log:          log.With().Str("component", "nse-client").Logger(),
		requestQueue: make(chan requestJob, requestQueueSize),
		stopChan:     make(chan struct{}),
		workerDone:   make(chan struct{}),
		lastSpot:     make(map[domain.Instrument]spotSample),
	}

	go c.worker()
	return c
}

// Close shuts down the rate-limiting worker.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.stopChan)
		<-c.workerDone
	})
}

// GetOptionChain fetches and maps the raw chain for one expiry.
func (c *Client) GetOptionChain(ctx context.Context, instrument domain.Instrument, expiry string) ([]domain.RawStrike, error) {
	records, err := c.fetchChain(ctx, instrument)
	if err != nil {
		return nil, err
	}

	upstreamExpiry, err := toUpstreamExpiry(expiry)
	if err != nil {
		return nil, err
	}

	var strikes []domain.RawStrike
	for _, row := range records.Data {
		if row.ExpiryDate != upstreamExpiry {
			continue
		}
		strikes = append(strikes, domain.RawStrike{
			StrikePrice: row.StrikePrice,
			CE:          row.CE.toQuote(),
			PE:          row.PE.toQuote(),
		})
	}

	if len(strikes) == 0 {
		return nil, fmt.Errorf("%w: no strikes for %s %s", upstream.ErrUnavailable, instrument, expiry)
	}
	return strikes, nil
}

// GetSpotPrice returns the underlying value. A fresh value observed on a
// recent chain fetch is reused instead of issuing another request.
func (c *Client) GetSpotPrice(ctx context.Context, instrument domain.Instrument) (float64, error) {
	c.mu.Lock()
	sample, ok := c.lastSpot[instrument]
	c.mu.Unlock()
	if ok && time.Since(sample.at) < chainSpotMaxAge {
		return sample.value, nil
	}

	records, err := c.fetchChain(ctx, instrument)
	if err != nil {
		return 0, err
	}
	return records.UnderlyingValue, nil
}

// fetchChain queues one chain request and waits for the worker.
func (c *Client) fetchChain(ctx context.Context, instrument domain.Instrument) (chainRecords, error) {
	resultCh := make(chan requestResult, 1)
	job := requestJob{
		ctx:        ctx,
		instrument: instrument,
		resultCh:   resultCh,
	}

	select {
	case c.requestQueue <- job:
	case <-c.stopChan:
		return chainRecords{}, fmt.Errorf("%w: client is closed", upstream.ErrUnavailable)
	case <-ctx.Done():
		return chainRecords{}, ctx.Err()
	default:
		return chainRecords{}, fmt.Errorf("%w: request queue is full", upstream.ErrUnavailable)
	}

	select {
	case result := <-resultCh:
		if result.err == nil {
			c.mu.Lock()
			c.lastSpot[instrument] = spotSample{
				value: result.records.UnderlyingValue,
				at:    time.Now(),
			}
			c.mu.Unlock()
		}
		return result.records, result.err
	case <-ctx.Done():
		return chainRecords{}, ctx.Err()
	}
}

// worker drains the request queue sequentially, enforcing minimum spacing
// between upstream calls.
func (c *Client) worker() {
	defer close(c.workerDone)

	var lastRequestTime time.Time
	firstRequest := true

	processJob := func(job requestJob) {
		if !firstRequest {
			elapsed := time.Since(lastRequestTime)
			if elapsed < rateLimitDelay {
				time.Sleep(rateLimitDelay - elapsed)
			}
		}
		firstRequest = false

		var result requestResult
		result.records, result.err = c.fetchChainInternal(job.ctx, job.instrument.Info().UpstreamSymbol)
		lastRequestTime = time.Now()

		job.resultCh <- result
	}

	for {
		select {
		case <-c.stopChan:
			for {
				select {
				case job := <-c.requestQueue:
					job.resultCh <- requestResult{err: fmt.Errorf("%w: client is closed", upstream.ErrUnavailable)}
				default:
					return
				}
			}
		case job := <-c.requestQueue:
			processJob(job)
		}
	}
}

// fetchChainInternal performs the actual HTTP round trip.
func (c *Client) fetchChainInternal(ctx context.Context, symbol string) (chainRecords, error) {
	if err := c.ensureCookies(ctx); err != nil {
		return chainRecords{}, err
	}

	url := fmt.Sprintf("%s/api/option-chain-indices?symbol=%s", baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return chainRecords{}, fmt.Errorf("failed to build chain request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return chainRecords{}, fmt.Errorf("%w: %v", upstream.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Cookie rotation is the usual cause; force a warm-up next time.
		c.mu.Lock()
		c.cookiesSetAt = time.Time{}
		c.mu.Unlock()
		return chainRecords{}, fmt.Errorf("%w: status %d", upstream.ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return chainRecords{}, fmt.Errorf("%w: %v", upstream.ErrUnavailable, err)
	}

	var payload chainResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return chainRecords{}, fmt.Errorf("%w: malformed chain response: %v", upstream.ErrUnavailable, err)
	}

	c.log.Debug().
		Str("symbol", symbol).
		Int("rows", len(payload.Records.Data)).
		Float64("spot", payload.Records.UnderlyingValue).
		Msg("Fetched option chain")

	return payload.Records, nil
}

// ensureCookies hits the landing page when the session cookies are missing
// or stale. The API returns 401 without them.
func (c *Client) ensureCookies(ctx context.Context) error {
	c.mu.Lock()
	fresh := time.Since(c.cookiesSetAt) < cookieMaxAge
	c.mu.Unlock()
	if fresh {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build warm-up request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: cookie warm-up failed: %v", upstream.ErrUnavailable, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	c.mu.Lock()
	c.cookiesSetAt = time.Now()
	c.mu.Unlock()
	return nil
}

// toUpstreamExpiry converts YYYY-MM-DD into the DD-Mon-YYYY format the NSE
// API uses.
func toUpstreamExpiry(expiry string) (string, error) {
	t, err := time.Parse("2006-01-02", expiry)
	if err != nil {
		return "", fmt.Errorf("invalid expiry %q: %w", expiry, err)
	}
	return t.Format("02-Jan-2006"), nil
}
