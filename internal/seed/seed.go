// Package seed pages through historical candles and replays them through a
// strategy's OnSeedCandle callback before live processing begins (spec §4.3),
// the way the teacher's replay.Replayer pages a sorted candle series through
// a downstream consumer — except the source here is the rate-limited REST
// history endpoint, not a SQLite-backed recording, and the consumer is a
// strategy callback instead of a channel.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"livestratexec/internal/model"
	"livestratexec/internal/pad"
	"livestratexec/internal/ratelimit"
	"livestratexec/internal/strategy"
)

// Fetcher is the subset of ratelimit.ThrottledFetcher the Seeder needs,
// named as an interface so tests can fake it without a real token bucket.
type Fetcher interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, query model.CandleQuery) ([]model.Candle, error)
}

var _ Fetcher = (*ratelimit.ThrottledFetcher)(nil)

// PageSize bounds how many candles the Seeder asks for per request, mirroring
// the teacher's windowed-fetch style in indengine's consumer loop rather than
// one unbounded history pull.
const PageSize = 1000

// Seeder replays history through a Strategy's OnSeedCandle before the engine
// switches to live processing. It returns the final seeded state and the
// last candle seen, so the caller (Lifecycle Manager) can arm the Closure
// Timer against real history instead of a cold clock.
type Seeder struct {
	fetcher Fetcher
	strat   strategy.Strategy
	log     *slog.Logger
}

func New(fetcher Fetcher, strat strategy.Strategy, log *slog.Logger) *Seeder {
	if log == nil {
		log = slog.Default()
	}
	return &Seeder{fetcher: fetcher, strat: strat, log: log}
}

// Result is what Seed hands back to the Lifecycle Manager once history has
// been fully replayed.
type Result struct {
	State      any
	LastCandle model.Candle
	Seen       bool
}

// Seed pages [start, end) ascending, width-aligned, padding each page so the
// strategy never sees a gap (spec §4.2 applies during seeding too), and
// feeds every candle through OnSeedCandle in order. A callback error aborts
// seeding immediately (spec §4.3: errors abort seeding, not swallowed like
// steady-state errors).
func (s *Seeder) Seed(ctx context.Context, symbol, timeframe string, width int64, start, end int64, state any) (Result, error) {
	result := Result{State: state}

	for cursor := start; cursor < end; {
		pageEnd := cursor + int64(PageSize)*width
		if pageEnd > end {
			pageEnd = end
		}

		candles, err := s.fetcher.FetchCandles(ctx, symbol, timeframe, model.CandleQuery{
			Start: cursor,
			End:   pageEnd,
			Limit: PageSize,
			Sort:  1,
		})
		if err != nil {
			return result, fmt.Errorf("seed: fetch page [%d,%d): %w", cursor, pageEnd, err)
		}

		pad.SortAscending(candles)
		padded := pad.Pad(candles, width, pad.Range{Start: cursor, End: pageEnd})

		for _, c := range padded {
			c.TF = timeframe
			c.Symbol = symbol
			next, err := s.strat.OnSeedCandle(result.State, c)
			if err != nil {
				return result, fmt.Errorf("seed: OnSeedCandle at mts=%d: %w", c.MTS, err)
			}
			result.State = next
			result.LastCandle = c
			result.Seen = true
		}

		s.log.Debug("seed: page complete", "symbol", symbol, "tf", timeframe, "start", cursor, "end", pageEnd, "count", len(padded))
		cursor = pageEnd
	}

	return result, nil
}
