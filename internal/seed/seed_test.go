package seed

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"livestratexec/internal/model"
	"livestratexec/internal/strategy"
)

type fakeFetcher struct {
	pages [][]model.Candle
	calls int
	err   error
}

func (f *fakeFetcher) FetchCandles(ctx context.Context, symbol, timeframe string, query model.CandleQuery) ([]model.Candle, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	f.calls++
	if idx >= len(f.pages) {
		return nil, nil
	}
	return f.pages[idx], nil
}

// countingStrategy records every candle handed to OnSeedCandle, in order.
type countingStrategy struct {
	seeded  []model.Candle
	failAt  int // -1 disables
	seenCnt int
}

func (s *countingStrategy) Name() string { return "counting" }

func (s *countingStrategy) OnSeedCandle(state any, candle model.Candle) (any, error) {
	if s.failAt >= 0 && s.seenCnt == s.failAt {
		return state, errors.New("boom")
	}
	s.seeded = append(s.seeded, candle)
	s.seenCnt++
	return state, nil
}

func (s *countingStrategy) OnCandle(state any, candle model.Candle) (any, *strategy.Signal, error) {
	return state, nil, nil
}
func (s *countingStrategy) OnTrade(state any, trade model.Trade) (any, *strategy.Signal, error) {
	return state, nil, nil
}
func (s *countingStrategy) OnOrder(state any, order model.OrderClose) (any, error) { return state, nil }
func (s *countingStrategy) GetPosition(state any, symbol string) *strategy.Position { return nil }
func (s *countingStrategy) CloseOpenPositions(state any) (any, error)               { return state, nil }
func (s *countingStrategy) CalcRealizedPositionPnl(state any, pos strategy.Position, price float64) float64 {
	return 0
}
func (s *countingStrategy) CalcUnrealizedPositionPnl(state any, pos strategy.Position, price float64) float64 {
	return 0
}

func TestSeedReplaysEveryBucketInOrder(t *testing.T) {
	const width = 60000
	fetcher := &fakeFetcher{pages: [][]model.Candle{
		{
			{Symbol: "s", TF: "1m", MTS: 0, Close: decimal.NewFromInt(10)},
			{Symbol: "s", TF: "1m", MTS: 120000, Close: decimal.NewFromInt(30)},
		},
	}}
	strat := &countingStrategy{failAt: -1}
	seeder := New(fetcher, strat, nil)

	result, err := seeder.Seed(context.Background(), "s", "1m", width, 0, 180000, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Seen {
		t.Fatal("expected Seen = true")
	}
	if len(strat.seeded) != 3 {
		t.Fatalf("expected 3 seeded candles (padding completeness), got %d", len(strat.seeded))
	}
	for i, c := range strat.seeded {
		want := int64(i) * width
		if c.MTS != want {
			t.Fatalf("seeded[%d].MTS = %d, want %d", i, c.MTS, want)
		}
	}
	if result.LastCandle.MTS != 120000 {
		t.Fatalf("LastCandle.MTS = %d, want 120000", result.LastCandle.MTS)
	}
}

func TestSeedAbortsOnCallbackError(t *testing.T) {
	const width = 60000
	fetcher := &fakeFetcher{pages: [][]model.Candle{
		{{Symbol: "s", TF: "1m", MTS: 0, Close: decimal.NewFromInt(10)}},
	}}
	strat := &countingStrategy{failAt: 0}
	seeder := New(fetcher, strat, nil)

	_, err := seeder.Seed(context.Background(), "s", "1m", width, 0, 60000, nil)
	if err == nil {
		t.Fatal("expected seeding to abort on callback error")
	}
}

func TestSeedSurfacesFetchError(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("rate limited")}
	strat := &countingStrategy{failAt: -1}
	seeder := New(fetcher, strat, nil)

	_, err := seeder.Seed(context.Background(), "s", "1m", 60000, 0, 60000, nil)
	if err == nil {
		t.Fatal("expected fetch error to surface")
	}
}
