package model

import "context"

// CandleQuery parameterizes a RestClient candle-history fetch.
type CandleQuery struct {
	Start int64 // Unix ms, inclusive
	End   int64 // Unix ms, exclusive
	Limit int
	Sort  int // 1 = ascending by MTS
}

// RestClient is the injected REST collaborator (spec §6): it fetches
// candle history for a symbol+timeframe. Ascending by MTS when
// Query.Sort == 1. Implementations add no timeout of their own beyond
// whatever the underlying HTTP client applies (spec §5).
type RestClient interface {
	Candles(ctx context.Context, symbol, timeframe, section string, query CandleQuery) ([]Candle, error)
}

// Socket is the chainable subscription primitive returned by Subscribe;
// spec §6 describes it as "subscribe(socket, channel, params) -> socket'".
type Socket interface {
	Subscribe(ctx context.Context, channel string, params map[string]any) error
}

// WSHandler receives a decoded payload for a subscribed channel.
type WSHandler func(payload any)

// WSManager is the injected WebSocket collaborator (spec §6). Channels
// used by the engine: "trades", "candles", "auth:oc", "auth:ws", "auth:wu",
// "open", "close". WSManager owns reconnection; the engine only attaches
// handlers and issues subscriptions.
type WSManager interface {
	// OnWS attaches handler for channel, optionally narrowed by filter.
	OnWS(channel string, filter map[string]string, handler WSHandler)

	// WithSocket hands the current socket to fn so the caller can issue
	// subscribe calls against it.
	WithSocket(fn func(Socket) error) error
}

// PriceFeed is the injected scalar price-feed collaborator. Callers enforce
// mts monotonicity; repeated or out-of-order calls are the caller's bug,
// not the feed's to silently fix.
type PriceFeed interface {
	Update(price float64, mts int64)
	Value() (price float64, mts int64)
}

// PerfManager is the injected performance/PnL aggregation collaborator
// (spec §6).
type PerfManager interface {
	Allocation() float64
	PositionSize() float64
	CurrentAllocation() float64
	AvailableFunds() float64
	EquityCurve() []float64
	Return() float64
	ReturnPerc() float64
	Drawdown() float64
}
