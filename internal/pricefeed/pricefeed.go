// Package pricefeed tracks the latest traded price for a symbol, the way
// the teacher's agg.Aggregator tracks an event-time watermark: a single
// monotonically-advancing value, mutex-guarded because one goroutine
// writes (Event Intake, on every trade) while others (the Result Emitter,
// the strategy's unrealized-PnL calculation) read concurrently.
package pricefeed

import "sync"

// Feed implements model.PriceFeed. Update is expected to be called only
// with non-decreasing mts — Event Intake enforces that invariant before
// calling in (spec §4.4: "trade price pushed to PriceFeed iff monotonic"),
// so Feed itself trusts its caller rather than re-checking.
type Feed struct {
	mu    sync.RWMutex
	price float64
	mts   int64
	set   bool
}

func New() *Feed {
	return &Feed{}
}

// Update records a new last-traded price and its event timestamp.
func (f *Feed) Update(price float64, mts int64) {
	f.mu.Lock()
	f.price = price
	f.mts = mts
	f.set = true
	f.mu.Unlock()
}

// Value returns the last recorded price and timestamp. Zero values if no
// trade has been observed yet.
func (f *Feed) Value() (price float64, mts int64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.price, f.mts
}

// Ready reports whether at least one price has been observed.
func (f *Feed) Ready() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.set
}
