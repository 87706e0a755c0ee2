package portfolio

import (
	"sync"
	"time"
)

// Trade represents a completed fill for P&L calculation.
type Trade struct {
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"` // BUY or SELL
	Qty       float64   `json:"qty"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// PnLTracker tracks realized and unrealized P&L per symbol via a
// weighted-average cost basis.
type PnLTracker struct {
	mu     sync.RWMutex
	trades []Trade

	realizedPnL float64
	costBasis   map[string]costEntry
}

type costEntry struct {
	Qty      float64
	AvgPrice float64
}

// NewPnLTracker creates a new P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{
		trades:    make([]Trade, 0, 500),
		costBasis: make(map[string]costEntry),
	}
}

// RecordTrade records a trade, updates the weighted-average cost basis, and
// returns the realized P&L this trade crystallized (0 for a position-
// increasing trade).
func (p *PnLTracker) RecordTrade(trade Trade) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.trades = append(p.trades, trade)
	entry := p.costBasis[trade.Symbol]

	var realizedPnL float64

	if trade.Action == "BUY" {
		if entry.Qty == 0 {
			entry.Qty = trade.Qty
			entry.AvgPrice = trade.Price
		} else {
			totalCost := entry.AvgPrice*entry.Qty + trade.Price*trade.Qty
			entry.Qty += trade.Qty
			if entry.Qty > 0 {
				entry.AvgPrice = totalCost / entry.Qty
			}
		}
	} else {
		sellQty := trade.Qty
		if sellQty > entry.Qty {
			sellQty = entry.Qty
		}
		realizedPnL = (trade.Price - entry.AvgPrice) * sellQty
		entry.Qty -= sellQty
		if entry.Qty <= 0 {
			entry.Qty = 0
			entry.AvgPrice = 0
		}
		p.realizedPnL += realizedPnL
	}

	p.costBasis[trade.Symbol] = entry
	return realizedPnL
}

// GetRealizedPnL returns total realized P&L.
func (p *PnLTracker) GetRealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realizedPnL
}

// GetUnrealizedPnL calculates unrealized P&L from current prices, keyed by symbol.
func (p *PnLTracker) GetUnrealizedPnL(currentPrices map[string]float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var unrealized float64
	for symbol, entry := range p.costBasis {
		if entry.Qty <= 0 {
			continue
		}
		if price, ok := currentPrices[symbol]; ok {
			unrealized += (price - entry.AvgPrice) * entry.Qty
		}
	}
	return unrealized
}

// GetTrades returns a snapshot of all trades.
func (p *PnLTracker) GetTrades() []Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Trade, len(p.trades))
	copy(cp, p.trades)
	return cp
}

// PnLSummary is a point-in-time P&L summary.
type PnLSummary struct {
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	TotalTrades   int     `json:"total_trades"`
	OpenPositions int     `json:"open_positions"`
}

// GetSummary returns the current P&L summary.
func (p *PnLTracker) GetSummary(currentPrices map[string]float64) PnLSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var unrealized float64
	openPositions := 0
	for symbol, entry := range p.costBasis {
		if entry.Qty <= 0 {
			continue
		}
		openPositions++
		if price, ok := currentPrices[symbol]; ok {
			unrealized += (price - entry.AvgPrice) * entry.Qty
		}
	}

	return PnLSummary{
		RealizedPnL:   p.realizedPnL,
		UnrealizedPnL: unrealized,
		TotalPnL:      p.realizedPnL + unrealized,
		TotalTrades:   len(p.trades),
		OpenPositions: openPositions,
	}
}
