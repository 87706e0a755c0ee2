package strategy

import (
	"log/slog"

	"livestratexec/internal/indicator"
	"livestratexec/internal/model"
)

// SMACrossover is a reference Strategy implementation (not normative — see
// package doc): fast/slow SMA golden-cross/death-cross signals, with an
// optional RSI filter against chasing an already-overbought/oversold move.
// It demonstrates the full callback contract end to end, including the
// opaque-state discipline the engine relies on (spec §4.9, §7 item 4):
// every method takes the previous state and returns the next one, never
// mutating shared fields directly.
type SMACrossover struct {
	name       string
	fastPeriod int
	slowPeriod int
	qty        float64
	rsiEnabled bool
	rsiPeriod  int
	log        *slog.Logger
}

// smaCrossoverState is the opaque state value threaded through every
// callback. One instance covers exactly one symbol, matching the engine's
// one-symbol-per-instance design (spec §2 Engine).
type smaCrossoverState struct {
	fast *indicator.SMA
	slow *indicator.SMA
	rsi  *indicator.RSI

	prevFast, prevSlow float64
	haveReading        bool

	position *Position
}

// NewSMACrossover creates a new SMA crossover strategy.
// fastPeriod should be < slowPeriod (e.g. 9 and 21). qty is the position
// size per signal. enableRSI adds an overbought/oversold filter.
func NewSMACrossover(fastPeriod, slowPeriod int, qty float64, enableRSI bool, rsiPeriod int, log *slog.Logger) *SMACrossover {
	if log == nil {
		log = slog.Default()
	}
	return &SMACrossover{
		name:       "SMA_Crossover",
		fastPeriod: fastPeriod,
		slowPeriod: slowPeriod,
		qty:        qty,
		rsiEnabled: enableRSI,
		rsiPeriod:  rsiPeriod,
		log:        log,
	}
}

func (s *SMACrossover) Name() string { return s.name }

func (s *SMACrossover) newState() *smaCrossoverState {
	st := &smaCrossoverState{
		fast: indicator.NewSMA(s.fastPeriod),
		slow: indicator.NewSMA(s.slowPeriod),
	}
	if s.rsiEnabled {
		st.rsi = indicator.NewRSI(s.rsiPeriod)
	}
	return st
}

func (s *SMACrossover) state(state any) *smaCrossoverState {
	if state == nil {
		return s.newState()
	}
	return state.(*smaCrossoverState)
}

// OnSeedCandle warms up the indicators from historical candles without
// emitting signals — a golden/death cross detected mid-seed reflects stale
// history, not a live trading decision.
func (s *SMACrossover) OnSeedCandle(state any, candle model.Candle) (any, error) {
	st := s.state(state)
	st.fast.Update(candle)
	st.slow.Update(candle)
	if st.rsi != nil {
		st.rsi.Update(candle)
	}
	if st.fast.Ready() && st.slow.Ready() {
		st.prevFast, st.prevSlow = st.fast.Value(), st.slow.Value()
		st.haveReading = true
	}
	return st, nil
}

func (s *SMACrossover) OnCandle(state any, candle model.Candle) (any, *Signal, error) {
	st := s.state(state)

	st.fast.Update(candle)
	st.slow.Update(candle)
	if st.rsi != nil {
		st.rsi.Update(candle)
	}

	if !st.fast.Ready() || !st.slow.Ready() {
		return st, nil, nil
	}

	fastVal, slowVal := st.fast.Value(), st.slow.Value()
	defer func() {
		st.prevFast, st.prevSlow = fastVal, slowVal
		st.haveReading = true
	}()

	if !st.haveReading {
		return st, nil, nil
	}

	var sig *Signal
	switch {
	case st.prevFast <= st.prevSlow && fastVal > slowVal:
		if st.rsi != nil && st.rsi.Ready() && st.rsi.Value() > 70 {
			s.log.Info("strategy: golden cross filtered by RSI", "rsi", st.rsi.Value(), "symbol", candle.Symbol)
			break
		}
		sig = &Signal{
			StrategyName: s.name, Action: ActionBuy, Symbol: candle.Symbol,
			Qty: s.qty, Price: 0, Reason: "SMA golden cross (fast > slow)", TF: candle.TF,
		}
		st.position = &Position{Symbol: candle.Symbol, Qty: s.qty, AvgPrice: candle.Close.InexactFloat64()}

	case st.prevFast >= st.prevSlow && fastVal < slowVal:
		if st.rsi != nil && st.rsi.Ready() && st.rsi.Value() < 30 {
			s.log.Info("strategy: death cross filtered by RSI", "rsi", st.rsi.Value(), "symbol", candle.Symbol)
			break
		}
		sig = &Signal{
			StrategyName: s.name, Action: ActionSell, Symbol: candle.Symbol,
			Qty: s.qty, Price: 0, Reason: "SMA death cross (fast < slow)", TF: candle.TF,
		}
		st.position = nil
	}

	return st, sig, nil
}

// OnTrade has nothing to react to for this strategy — it trades on closed
// candles only, not on individual prints.
func (s *SMACrossover) OnTrade(state any, trade model.Trade) (any, *Signal, error) {
	return s.state(state), nil, nil
}

// OnOrder is a no-op: this strategy doesn't correlate fills back to
// specific orders beyond the position it already tracks optimistically.
func (s *SMACrossover) OnOrder(state any, order model.OrderClose) (any, error) {
	return s.state(state), nil
}

func (s *SMACrossover) GetPosition(state any, symbol string) *Position {
	st := s.state(state)
	if st.position == nil || st.position.Symbol != symbol {
		return nil
	}
	return st.position
}

func (s *SMACrossover) CloseOpenPositions(state any) (any, error) {
	st := s.state(state)
	st.position = nil
	return st, nil
}

func (s *SMACrossover) CalcRealizedPositionPnl(state any, pos Position, price float64) float64 {
	return (price - pos.AvgPrice) * pos.Qty
}

func (s *SMACrossover) CalcUnrealizedPositionPnl(state any, pos Position, price float64) float64 {
	return (price - pos.AvgPrice) * pos.Qty
}

var _ Strategy = (*SMACrossover)(nil)
