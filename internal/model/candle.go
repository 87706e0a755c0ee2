package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Candle is an OHLCV bar for one symbol+timeframe. Within a series all mts
// values are multiples of the timeframe width; mts is strictly increasing
// once a candle has closed, and an "updating" candle shares the mts of the
// currently open bar.
type Candle struct {
	Symbol string          `json:"symbol"`
	TF     string          `json:"tf"`
	MTS    int64           `json:"mts"` // bucket start, Unix milliseconds
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`

	// Synthetic marks a candle manufactured by the Padder or the Closure
	// Timer rather than received from the exchange.
	Synthetic bool `json:"synthetic,omitempty"`
}

// Key returns a unique key for this candle's series: "symbol:tf".
func (c *Candle) Key() string {
	return c.Symbol + ":" + c.TF
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// PriceField selects one OHLC field by name, used by the price-feed tap
// (config option candlePrice, default "close").
func (c *Candle) PriceField(field string) decimal.Decimal {
	switch field {
	case "open":
		return c.Open
	case "high":
		return c.High
	case "low":
		return c.Low
	default:
		return c.Close
	}
}

// WithPrevClose returns a synthetic zero-volume candle for bucket mts,
// carrying prevClose into open/high/low/close. Used by the Padder and the
// Closure Timer to manufacture a bar nothing arrived for.
func WithPrevClose(symbol, tf string, mts int64, prevClose decimal.Decimal) Candle {
	return Candle{
		Symbol:    symbol,
		TF:        tf,
		MTS:       mts,
		Open:      prevClose,
		High:      prevClose,
		Low:       prevClose,
		Close:     prevClose,
		Volume:    decimal.Zero,
		Synthetic: true,
	}
}
