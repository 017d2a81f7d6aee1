// Package rates supplies current USD exchange rates per asset. The engine
// snapshots a rate onto each new transaction record; a missing rate degrades
// to zero there, it never blocks processing.
package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kingdavid6336/stellar-anchor/internal/cache"
	"github.com/kingdavid6336/stellar-anchor/internal/circuitbreaker"
	"github.com/kingdavid6336/stellar-anchor/internal/metrics"
)

// Source provides the current USD rate for an asset. ok is false when no
// rate is available.
type Source interface {
	USDRate(ctx context.Context, asset string) (rate decimal.Decimal, ok bool, err error)
}

// HTTPSource fetches rates from a coingecko-style simple price endpoint,
// with an LRU+TTL cache in front and a circuit breaker around the upstream.
type HTTPSource struct {
	endpoint   string
	providerID map[string]string // asset code -> provider id
	httpClient *http.Client
	cache      *cache.LRU[string, decimal.Decimal]
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
}

func NewHTTPSource(endpoint string, providerIDs map[string]string, cacheTTL, timeout time.Duration, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		endpoint:   endpoint,
		providerID: providerIDs,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache.NewLRU[string, decimal.Decimal](256, cacheTTL),
		breaker:    circuitbreaker.New(circuitbreaker.Config{}),
		logger:     logger.With("component", "rates"),
	}
}

func (s *HTTPSource) USDRate(ctx context.Context, asset string) (decimal.Decimal, bool, error) {
	if rate, ok := s.cache.Get(asset); ok {
		metrics.RateLookupsTotal.WithLabelValues(asset, "cache_hit").Inc()
		return rate, true, nil
	}

	id, ok := s.providerID[asset]
	if !ok {
		metrics.RateLookupsTotal.WithLabelValues(asset, "unknown_asset").Inc()
		return decimal.Zero, false, nil
	}

	if err := s.breaker.Allow(); err != nil {
		metrics.RateLookupsTotal.WithLabelValues(asset, "breaker_open").Inc()
		return decimal.Zero, false, err
	}

	rate, err := s.fetch(ctx, id)
	if err != nil {
		s.breaker.RecordFailure()
		metrics.RateLookupsTotal.WithLabelValues(asset, "error").Inc()
		return decimal.Zero, false, err
	}
	s.breaker.RecordSuccess()
	metrics.RateLookupsTotal.WithLabelValues(asset, "fetched").Inc()

	s.cache.Put(asset, rate)
	return rate, true, nil
}

func (s *HTTPSource) fetch(ctx context.Context, providerID string) (decimal.Decimal, error) {
	q := url.Values{}
	q.Set("ids", providerID)
	q.Set("vs_currencies", "usd")

	sep := "?"
	if strings.Contains(s.endpoint, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+sep+q.Encode(), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate provider status %d: %s", resp.StatusCode, string(body))
	}

	// {"bitcoin":{"usd":67000.12}} decoded without float64 round-trips.
	var payload map[string]map[string]json.Number
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("unmarshal rate response: %w", err)
	}

	entry, ok := payload[providerID]
	if !ok {
		return decimal.Zero, fmt.Errorf("rate provider returned no entry for %q", providerID)
	}
	raw, ok := entry["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("rate provider returned no usd rate for %q", providerID)
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", raw, err)
	}
	return rate, nil
}
