// Package portfolio tracks positions, P&L, and account-level performance
// metrics. It implements model.PerfManager, the collaborator a strategy's
// host wires up to answer allocation/exposure/drawdown questions the
// strategy itself has no business computing (spec §6, §9).
package portfolio

import (
	"sync"

	"livestratexec/internal/model"
)

// Position represents a single instrument position.
type Position struct {
	Symbol   string  `json:"symbol"`
	Qty      float64 `json:"qty"`       // positive = long, negative = short
	AvgPrice float64 `json:"avg_price"` // average entry price
	LastLTP  float64 `json:"last_ltp"`  // last traded price
}

// UnrealizedPnL returns the unrealized P&L at the position's last known price.
func (p *Position) UnrealizedPnL() float64 {
	return (p.LastLTP - p.AvgPrice) * p.Qty
}

// Notional returns the current market value of the position.
func (p *Position) Notional() float64 {
	return p.LastLTP * p.Qty
}

// Portfolio tracks open positions, available capital, and an equity curve,
// implementing model.PerfManager. Adapted from the teacher's position
// tracker (keyed by exchange:token) and extended with the
// allocation/equity-curve/drawdown bookkeeping spec §9 asks for but the
// teacher's NSE equities portfolio never needed (a single cash account,
// not a margin/leverage book).
type Portfolio struct {
	mu sync.RWMutex

	initialCapital float64
	availableFunds float64
	positions      map[string]*Position // key = symbol

	realizedPnL float64
	equityCurve []float64
	peakEquity  float64
}

// New creates a new Portfolio seeded with the given starting capital.
func New(initialCapital float64) *Portfolio {
	return &Portfolio{
		initialCapital: initialCapital,
		availableFunds: initialCapital,
		positions:      make(map[string]*Position),
		equityCurve:    []float64{initialCapital},
		peakEquity:     initialCapital,
	}
}

// UpdatePrice updates the last traded price for a position and appends a new
// equity-curve point reflecting the mark-to-market change.
func (pf *Portfolio) UpdatePrice(candle model.Candle) {
	price := candle.Close.InexactFloat64()
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pos, ok := pf.positions[candle.Symbol]; ok {
		pos.LastLTP = price
	}
	pf.recordEquityLocked()
}

// ApplyFill records a trade's cash effect against available funds and
// updates (or opens/closes) the corresponding position with a
// weighted-average cost basis. Returns the realized P&L this fill
// crystallized.
func (pf *Portfolio) ApplyFill(symbol, action string, qty, price float64) float64 {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	pos, ok := pf.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol, LastLTP: price}
		pf.positions[symbol] = pos
	}

	var realized float64
	switch action {
	case "BUY":
		cost := price * qty
		pf.availableFunds -= cost
		if pos.Qty == 0 {
			pos.Qty = qty
			pos.AvgPrice = price
		} else {
			totalCost := pos.AvgPrice*pos.Qty + price*qty
			pos.Qty += qty
			if pos.Qty != 0 {
				pos.AvgPrice = totalCost / pos.Qty
			}
		}
	case "SELL":
		sellQty := qty
		if sellQty > pos.Qty {
			sellQty = pos.Qty
		}
		realized = (price - pos.AvgPrice) * sellQty
		pf.realizedPnL += realized
		pf.availableFunds += price * sellQty
		pos.Qty -= sellQty
		if pos.Qty <= 0 {
			delete(pf.positions, symbol)
		}
	}

	pos.LastLTP = price
	pf.recordEquityLocked()
	return realized
}

// recordEquityLocked appends the current mark-to-market equity to the curve
// and updates the running peak for drawdown. Caller must hold pf.mu.
func (pf *Portfolio) recordEquityLocked() {
	equity := pf.equityLocked()
	pf.equityCurve = append(pf.equityCurve, equity)
	if equity > pf.peakEquity {
		pf.peakEquity = equity
	}
}

func (pf *Portfolio) equityLocked() float64 {
	equity := pf.availableFunds
	for _, p := range pf.positions {
		equity += p.Notional()
	}
	return equity
}

// GetPositions returns a snapshot of all open positions.
func (pf *Portfolio) GetPositions() []Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	result := make([]Position, 0, len(pf.positions))
	for _, p := range pf.positions {
		result = append(result, *p)
	}
	return result
}

// TotalUnrealizedPnL returns the total unrealized P&L across all open positions.
func (pf *Portfolio) TotalUnrealizedPnL() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var total float64
	for _, p := range pf.positions {
		total += p.UnrealizedPnL()
	}
	return total
}

// Allocation returns the fraction of total equity currently committed to
// open positions (0 = fully in cash, 1 = fully invested).
func (pf *Portfolio) Allocation() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	equity := pf.equityLocked()
	if equity == 0 {
		return 0
	}
	var notional float64
	for _, p := range pf.positions {
		notional += p.Notional()
	}
	return notional / equity
}

// CurrentAllocation is an alias for Allocation, matching model.PerfManager's
// naming of both the target-facing and live-facing accessor (spec §6) —
// this portfolio has no separate "target allocation" concept, so both
// report the same live figure.
func (pf *Portfolio) CurrentAllocation() float64 {
	return pf.Allocation()
}

// PositionSize returns the total absolute quantity held across all
// positions — a simple per-symbol strategy has at most one, but the
// interface is account-level.
func (pf *Portfolio) PositionSize() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var total float64
	for _, p := range pf.positions {
		if p.Qty < 0 {
			total += -p.Qty
		} else {
			total += p.Qty
		}
	}
	return total
}

// AvailableFunds returns the uncommitted cash balance.
func (pf *Portfolio) AvailableFunds() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.availableFunds
}

// EquityCurve returns a snapshot of the mark-to-market equity series
// recorded so far (oldest first).
func (pf *Portfolio) EquityCurve() []float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	cp := make([]float64, len(pf.equityCurve))
	copy(cp, pf.equityCurve)
	return cp
}

// Return returns absolute P&L since inception: current equity minus starting capital.
func (pf *Portfolio) Return() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.equityLocked() - pf.initialCapital
}

// ReturnPerc returns the percentage return since inception.
func (pf *Portfolio) ReturnPerc() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if pf.initialCapital == 0 {
		return 0
	}
	return (pf.equityLocked() - pf.initialCapital) / pf.initialCapital * 100
}

// Drawdown returns the current drawdown from the running equity peak, as a
// fraction (0 = at peak, 0.2 = 20% below peak).
func (pf *Portfolio) Drawdown() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if pf.peakEquity == 0 {
		return 0
	}
	equity := pf.equityLocked()
	if equity >= pf.peakEquity {
		return 0
	}
	return (pf.peakEquity - equity) / pf.peakEquity
}

var _ model.PerfManager = (*Portfolio)(nil)
