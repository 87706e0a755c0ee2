package intake

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"livestratexec/internal/model"
)

type fakeQueue struct {
	msgs []model.Message
}

func (q *fakeQueue) Enqueue(msg model.Message) { q.msgs = append(q.msgs, msg) }

type fakePause struct {
	closed int
	opened int
}

func (p *fakePause) OnSocketClose()                   { p.closed++ }
func (p *fakePause) OnSocketOpen(ctx context.Context) { p.opened++ }

type fakeFeed struct {
	price float64
	mts   int64
}

func (f *fakeFeed) Update(price float64, mts int64) { f.price = price; f.mts = mts }

func TestCandleSnapshotWithMultipleEntriesDropped(t *testing.T) {
	q := &fakeQueue{}
	in := New(Config{Queue: q, Pause: &fakePause{}, PriceFeed: &fakeFeed{}, Symbol: "s", Timeframe: "1m"})

	in.OnCandleSnapshot([]model.Candle{{MTS: 1}, {MTS: 2}})

	if len(q.msgs) != 0 {
		t.Fatalf("expected snapshot with >1 candle to be dropped, got %d messages", len(q.msgs))
	}
}

func TestCandleSnapshotWithSingleEntryEnqueued(t *testing.T) {
	q := &fakeQueue{}
	in := New(Config{Queue: q, Pause: &fakePause{}, PriceFeed: &fakeFeed{}, Symbol: "s", Timeframe: "1m"})

	in.OnCandleSnapshot([]model.Candle{{MTS: 1}})

	if len(q.msgs) != 1 || q.msgs[0].Type != model.MessageCandle {
		t.Fatalf("expected 1 enqueued candle message, got %+v", q.msgs)
	}
	if q.msgs[0].Candle.Symbol != "s" || q.msgs[0].Candle.TF != "1m" {
		t.Fatalf("expected candle stamped with symbol/tf, got %+v", q.msgs[0].Candle)
	}
}

func TestTradeSingleRequiresIncludeTrades(t *testing.T) {
	q := &fakeQueue{}
	in := New(Config{Queue: q, Pause: &fakePause{}, PriceFeed: &fakeFeed{}, IncludeTrades: false})

	in.OnTradeSingle(model.Trade{ID: 1, MTS: 1000, Price: decimal.NewFromInt(50)})
	if len(q.msgs) != 0 {
		t.Fatal("expected trade not enqueued when includeTrades is false")
	}
}

func TestTradeSinglePushesPriceRegardlessOfIncludeTrades(t *testing.T) {
	feed := &fakeFeed{}
	in := New(Config{Queue: &fakeQueue{}, Pause: &fakePause{}, PriceFeed: feed, IncludeTrades: false})

	in.OnTradeSingle(model.Trade{ID: 1, MTS: 1000, Price: decimal.NewFromInt(50)})
	if feed.price != 50 || feed.mts != 1000 {
		t.Fatalf("expected price feed updated regardless of includeTrades, got price=%v mts=%v", feed.price, feed.mts)
	}
}

func TestTradePriceMonotonicityEnforced(t *testing.T) {
	feed := &fakeFeed{}
	in := New(Config{Queue: &fakeQueue{}, Pause: &fakePause{}, PriceFeed: feed})

	in.OnTradeSingle(model.Trade{ID: 1, MTS: 2000, Price: decimal.NewFromInt(50)})
	in.OnTradeSingle(model.Trade{ID: 2, MTS: 1000, Price: decimal.NewFromInt(999)}) // stale, must not push

	if feed.price != 50 || feed.mts != 2000 {
		t.Fatalf("expected out-of-order trade price ignored, got price=%v mts=%v", feed.price, feed.mts)
	}
}

func TestSocketEventsDrivePauseController(t *testing.T) {
	pc := &fakePause{}
	in := New(Config{Queue: &fakeQueue{}, Pause: pc, PriceFeed: &fakeFeed{}})

	in.OnSocketClose()
	in.OnSocketOpen(context.Background())

	if pc.closed != 1 || pc.opened != 1 {
		t.Fatalf("expected socket events forwarded, got closed=%d opened=%d", pc.closed, pc.opened)
	}
}
