package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Trade is a single executed trade on the exchange. ID is strictly
// increasing in the exchange's emission order; duplicates (lower-or-equal
// ID) are dropped by the Serial Processor.
type Trade struct {
	ID     int64           `json:"id"`
	Symbol string          `json:"symbol"`
	MTS    int64           `json:"mts"` // Unix milliseconds
	Price  decimal.Decimal `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

// JSON returns the JSON-encoded trade.
func (t *Trade) JSON() []byte {
	b, _ := json.Marshal(t)
	return b
}
