package ratelimit

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"livestratexec/internal/model"
)

type fakeRest struct {
	calls int
	err   error
	out   []model.Candle
}

func (f *fakeRest) Candles(ctx context.Context, symbol, timeframe, section string, query model.CandleQuery) ([]model.Candle, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func TestFetchCandlesForwardsResult(t *testing.T) {
	want := []model.Candle{{Symbol: "tBTCUSD", TF: "1m", MTS: 0, Close: decimal.NewFromInt(100)}}
	rc := &fakeRest{out: want}
	f := New(rc, nil)

	got, err := f.FetchCandles(context.Background(), "tBTCUSD", "1m", model.CandleQuery{Sort: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || !got[0].Close.Equal(want[0].Close) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if rc.calls != 1 {
		t.Fatalf("expected exactly 1 underlying call, got %d", rc.calls)
	}
}

func TestFetchCandlesSurfacesError(t *testing.T) {
	rc := &fakeRest{err: errors.New("boom")}
	f := New(rc, nil)

	_, err := f.FetchCandles(context.Background(), "tBTCUSD", "1m", model.CandleQuery{})
	if err == nil {
		t.Fatal("expected error to surface, got nil")
	}
}

func TestFetchCandlesRespectsContextCancellation(t *testing.T) {
	rc := &fakeRest{}
	f := New(rc, nil)

	// Exhaust the burst so the next call must wait on the limiter.
	for i := 0; i < defaultBurst; i++ {
		if _, err := f.FetchCandles(context.Background(), "s", "1m", model.CandleQuery{}); err != nil {
			t.Fatalf("unexpected error priming burst: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.FetchCandles(ctx, "s", "1m", model.CandleQuery{}); err == nil {
		t.Fatal("expected error from cancelled context while waiting on limiter")
	}
}
