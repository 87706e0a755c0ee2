package model

import "github.com/shopspring/decimal"

// Wallet is one (currency, type) balance entry. Its identity key is
// (Currency, Type); a wallet-snapshot message replaces the full set, a
// wallet-update message mutates exactly one entry.
type Wallet struct {
	Currency         string          `json:"currency"`
	Type             string          `json:"type"`
	Balance          decimal.Decimal `json:"balance"`
	BalanceAvailable decimal.Decimal `json:"balance_available"`
}

// Key returns the wallet identity key "type:currency".
func (w *Wallet) Key() string {
	return w.Type + ":" + w.Currency
}

// ApplyUpdate mutates balance/balanceAvailable from upd in place, but only
// for fields upd actually carries. A zero value in upd is treated as "not
// provided" and the corresponding field is left untouched — this mirrors a
// quirk in the source system (zero balances are falsy) and is preserved
// intentionally rather than fixed; see DESIGN.md Open Question #2.
func (w *Wallet) ApplyUpdate(upd Wallet) {
	if !upd.Balance.IsZero() {
		w.Balance = upd.Balance
	}
	if !upd.BalanceAvailable.IsZero() {
		w.BalanceAvailable = upd.BalanceAvailable
	}
}
