// Package ratelimit wraps the REST candle endpoint in a global token
// bucket so historical fetches (seeding, resume back-fill) never exceed
// the exchange's rate limit (spec §4.1, §9: capacity 1, refill 10/60s).
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"livestratexec/internal/metrics"
	"livestratexec/internal/model"
)

// defaultBurst and defaultPerMin implement "10 requests per 60 seconds"
// as a token bucket: capacity 1, refilled at 10 tokens / 60s.
const (
	defaultBurst  = 1
	defaultPerMin = 10
)

// ThrottledFetcher enforces a single shared rate limit across the whole
// engine for every call to the underlying REST client. Failures surface to
// the caller unchanged; there is no automatic retry (spec §4.1).
type ThrottledFetcher struct {
	client  model.RestClient
	limiter *rate.Limiter
	log     *slog.Logger
	metrics *metrics.Metrics
}

// SetMetrics wires instrumentation after construction, the same
// post-construction setter pattern internal/processor.SetWatchdog uses.
func (f *ThrottledFetcher) SetMetrics(m *metrics.Metrics) {
	f.metrics = m
}

// New wraps client in a token bucket limiter. A nil logger disables
// logging.
func New(client model.RestClient, log *slog.Logger) *ThrottledFetcher {
	if log == nil {
		log = slog.Default()
	}
	return &ThrottledFetcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(defaultPerMin)/60, defaultBurst),
		log:     log,
	}
}

// FetchCandles blocks on the token bucket (queuing excess calls per §4.1),
// then delegates to the underlying REST client. Ascending by MTS when
// query.Sort == 1.
func (f *ThrottledFetcher) FetchCandles(ctx context.Context, symbol, timeframe string, query model.CandleQuery) ([]model.Candle, error) {
	waitStart := time.Now()
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("ratelimit: wait for token: %w", err)
	}
	if f.metrics != nil && time.Since(waitStart) > time.Millisecond {
		f.metrics.FetchThrottleWaits.Inc()
	}
	candles, err := f.client.Candles(ctx, symbol, timeframe, "hist", query)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: fetch candles: %w", err)
	}
	f.log.Debug("fetched candle window", "symbol", symbol, "tf", timeframe, "count", len(candles), "start", query.Start, "end", query.End)
	return candles, nil
}
