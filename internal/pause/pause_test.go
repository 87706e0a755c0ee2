package pause

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"livestratexec/internal/model"
	"livestratexec/internal/queue"
)

type fakeFetcher struct {
	candles []model.Candle
	err     error
	calls   int
	lastQ   model.CandleQuery
}

func (f *fakeFetcher) FetchCandles(ctx context.Context, symbol, timeframe string, query model.CandleQuery) ([]model.Candle, error) {
	f.calls++
	f.lastQ = query
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

type fakeProcessor struct {
	paused       bool
	resumeCalled int
}

func (p *fakeProcessor) SetPaused(v bool) { p.paused = v }
func (p *fakeProcessor) ResumeDraining()  { p.resumeCalled++; p.paused = false }

func clockAt(values ...int64) Clock {
	i := 0
	return func() int64 {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

func TestOnSocketCloseFreezesProcessing(t *testing.T) {
	q := queue.New()
	proc := &fakeProcessor{}
	c := New(Config{Queue: q, Processor: proc, WidthMTS: 60000, Clock: clockAt(100000)})

	c.OnSocketClose()

	if !proc.paused {
		t.Fatal("expected processor to be paused")
	}
	if !c.Paused() {
		t.Fatal("expected controller to report paused")
	}
}

func TestOnSocketOpenBackfillsAndResumes(t *testing.T) {
	q := queue.New()
	q.PushBack(model.CandleMessage(model.Candle{MTS: 400000})) // residual live message
	proc := &fakeProcessor{}
	fetcher := &fakeFetcher{candles: []model.Candle{
		{Symbol: "s", TF: "1m", MTS: 60000, Close: decimal.NewFromInt(5)},
	}}
	c := New(Config{
		Fetcher: fetcher, Queue: q, Processor: proc, WidthMTS: 60000,
		Symbol: "s", Timeframe: "1m", Clock: clockAt(100000, 400000),
	})

	c.OnSocketClose()
	c.OnSocketOpen(context.Background())

	if c.Paused() {
		t.Fatal("expected controller to clear paused after resume")
	}
	if proc.resumeCalled != 1 {
		t.Fatalf("expected ResumeDraining called once, got %d", proc.resumeCalled)
	}
	if fetcher.lastQ.Start != 100000-LookbackMS {
		t.Fatalf("back-fill start = %d, want %d", fetcher.lastQ.Start, 100000-LookbackMS)
	}
	// The queue should now be non-empty and sorted ascending by mts.
	prev := int64(-1)
	for {
		msg, ok := q.PopFront()
		if !ok {
			break
		}
		if msg.MTS() < prev {
			t.Fatalf("queue not sorted ascending after resume: mts=%d after prev=%d", msg.MTS(), prev)
		}
		prev = msg.MTS()
	}
}

func TestOnSocketOpenSwallowsFetchErrorAndResumesAnyway(t *testing.T) {
	q := queue.New()
	proc := &fakeProcessor{}
	fetcher := &fakeFetcher{err: errors.New("exchange unavailable")}
	c := New(Config{
		Fetcher: fetcher, Queue: q, Processor: proc, WidthMTS: 60000,
		Symbol: "s", Timeframe: "1m", Clock: clockAt(100000, 200000),
	})

	c.OnSocketClose()
	c.OnSocketOpen(context.Background())

	if c.Paused() {
		t.Fatal("expected resume to proceed despite fetch error (spec §7 item 3)")
	}
	if proc.resumeCalled != 1 {
		t.Fatal("expected draining to resume even without back-fill")
	}
}

func TestOnSocketOpenWhenNotPausedIsNoop(t *testing.T) {
	q := queue.New()
	proc := &fakeProcessor{}
	fetcher := &fakeFetcher{}
	c := New(Config{Fetcher: fetcher, Queue: q, Processor: proc, WidthMTS: 60000, Clock: clockAt(100000)})

	c.OnSocketOpen(context.Background())

	if fetcher.calls != 0 {
		t.Fatal("expected no back-fill fetch when controller was never paused")
	}
}
