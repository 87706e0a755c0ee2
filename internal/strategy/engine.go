// Package strategy defines the callback contract the execution engine
// drives (spec §4.9, §9): a capability set over an opaque state value,
// not an inheritance hierarchy. A Strategy receives seed/live market data,
// trades and order closures, and may emit a Signal when it wants the host to
// act. Wallet updates are kept by the Serial Processor and are not passed
// to the Strategy.
package strategy

import "livestratexec/internal/model"

// Signal is the trading intent a strategy hands back to its host after a
// callback. The engine itself never interprets or routes a Signal — per
// spec §1 the strategy places orders, not the core — but Signal is the
// shared vocabulary every concrete Strategy and its execution collaborator
// (internal/execution) speaks.
type Signal struct {
	StrategyName string          `json:"strategy_name"`
	Action       Action          `json:"action"`
	Symbol       string          `json:"symbol"`
	Qty          float64         `json:"qty"`
	Price        float64         `json:"price"` // 0 = market order
	Reason       string          `json:"reason"`
	TF           string          `json:"tf"`
}

// Action is a trading action a Signal requests.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionExit Action = "EXIT"
)

// Position is the strategy-owned view of an open position, returned by
// GetPosition. Realized/unrealized PnL are computed by the strategy's own
// collaborators (CalcRealizedPositionPnl/CalcUnrealizedPositionPnl), not by
// the engine — the engine only asks for a position and a PnL number to
// attach to emitted results (spec §4.8).
type Position struct {
	Symbol   string
	Qty      float64
	AvgPrice float64
}

// Strategy is the capability set the execution engine drives. State is an
// opaque value exclusively owned by the engine's Serial Processor; every
// callback is pure with respect to it — state_{n+1} = callback(state_n, event)
// — and the engine retains the last good state on a callback error
// (spec §7 item 4).
type Strategy interface {
	// Name identifies the strategy for logging and Signal.StrategyName.
	Name() string

	// OnSeedCandle replays one historical candle before live processing
	// begins (spec §4.3). Errors abort seeding.
	OnSeedCandle(state any, candle model.Candle) (any, error)

	// OnCandle is invoked once a candle has closed (spec §4.5): the
	// candle argument is always the closed bar, never an in-progress
	// update.
	OnCandle(state any, candle model.Candle) (any, *Signal, error)

	// OnTrade is invoked for each deduplicated trade (spec §4.5).
	OnTrade(state any, trade model.Trade) (any, *Signal, error)

	// OnOrder is invoked with an opaque order-close payload; the core
	// does not interpret it.
	OnOrder(state any, order model.OrderClose) (any, error)

	// GetPosition returns the strategy's view of its open position for
	// symbol, or nil if flat.
	GetPosition(state any, symbol string) *Position

	// CloseOpenPositions asks the strategy to flatten all open
	// positions, returning the updated state. Invoked by StopExecution.
	CloseOpenPositions(state any) (any, error)

	// CalcRealizedPositionPnl and CalcUnrealizedPositionPnl compute PnL
	// for a position at a reference price, for the Result Emitter.
	CalcRealizedPositionPnl(state any, pos Position, price float64) float64
	CalcUnrealizedPositionPnl(state any, pos Position, price float64) float64
}

// EndHook is satisfied by strategies that want to run custom cleanup logic
// when StopExecution fires (spec §4.9: "if state.onEnd exists, invoke it").
// Implemented as an optional interface rather than a required method,
// since most strategies have no special teardown.
type EndHook interface {
	OnEnd(state any) (any, error)
}
