package intake

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"livestratexec/internal/model"
)

// Normalizer decodes the generic payloads a WSManager hands to channel
// handlers into the typed model values Intake's OnX methods expect.
// Grounded on the teacher's internal/marketdata/ws normalizer step, which
// sits between the raw socket callback and tick aggregation; adapted here
// to decode JSON-shaped `any` values (maps/slices from an already-decoded
// WS frame) into Candle/Trade/Wallet rather than Angel One's binary tick
// layout.
type Normalizer struct {
	intake *Intake
	log    *slog.Logger
}

func NewNormalizer(in *Intake, log *slog.Logger) *Normalizer {
	if log == nil {
		log = slog.Default()
	}
	return &Normalizer{intake: in, log: log}
}

// HandleCandlePayload decodes a candles-channel payload, which is either a
// single candle object or an array of them (a snapshot), and hands each
// candle that DecodeCandlePayload lets through to Intake.OnCandleSingle.
func (n *Normalizer) HandleCandlePayload(payload any) {
	n.DecodeCandlePayload(payload, n.intake.OnCandleSingle)
}

// DecodeCandlePayload decodes a candles-channel payload the same way
// HandleCandlePayload does, but hands each surviving single candle to push
// instead of calling Intake directly. A multi-entry snapshot is resolved
// to "drop entirely" here (spec §4.4), matching OnCandleSnapshot's rule,
// so push only ever sees candles that would reach OnCandleSingle — this
// lets the candles channel be buffered through a ring (see engine.go)
// while every other channel calls straight through to Intake.
func (n *Normalizer) DecodeCandlePayload(payload any, push func(model.Candle)) {
	if arr, ok := asArray(payload); ok {
		if len(arr) != 1 {
			return
		}
		c, err := decodeCandle(arr[0])
		if err != nil {
			n.log.Warn("intake: dropping unparseable candle in snapshot", "error", err)
			return
		}
		push(c)
		return
	}
	c, err := decodeCandle(payload)
	if err != nil {
		n.log.Warn("intake: dropping unparseable candle", "error", err)
		return
	}
	push(c)
}

// HandleTradePayload decodes a trades-channel payload. An array (a
// snapshot) is decoded entry by entry, skipping unparseable entries, and
// handed whole to Intake.OnTradeSnapshot; a single object goes to
// Intake.OnTradeSingle.
func (n *Normalizer) HandleTradePayload(payload any) {
	if arr, ok := asArray(payload); ok {
		trades := make([]model.Trade, 0, len(arr))
		for _, item := range arr {
			t, err := decodeTrade(item)
			if err != nil {
				n.log.Warn("intake: dropping unparseable trade in snapshot", "error", err)
				continue
			}
			trades = append(trades, t)
		}
		n.intake.OnTradeSnapshot(trades)
		return
	}
	t, err := decodeTrade(payload)
	if err != nil {
		n.log.Warn("intake: dropping unparseable trade", "error", err)
		return
	}
	n.intake.OnTradeSingle(t)
}

// HandleOrderPayload forwards an order-close payload opaquely (spec §6: the
// core does not interpret order-close contents).
func (n *Normalizer) HandleOrderPayload(payload any) {
	n.intake.OnOrderClose(payload)
}

// HandleWalletSnapshotPayload decodes a wallet-snapshot payload (an array of
// wallet entries).
func (n *Normalizer) HandleWalletSnapshotPayload(payload any) {
	arr, ok := asArray(payload)
	if !ok {
		n.log.Warn("intake: wallet snapshot payload is not an array")
		return
	}
	wallets := make([]model.Wallet, 0, len(arr))
	for _, item := range arr {
		w, err := decodeWallet(item)
		if err != nil {
			n.log.Warn("intake: dropping unparseable wallet entry", "error", err)
			continue
		}
		wallets = append(wallets, w)
	}
	n.intake.OnWalletSnapshot(wallets)
}

// HandleWalletUpdatePayload decodes a single wallet-update payload.
func (n *Normalizer) HandleWalletUpdatePayload(payload any) {
	w, err := decodeWallet(payload)
	if err != nil {
		n.log.Warn("intake: dropping unparseable wallet update", "error", err)
		return
	}
	n.intake.OnWalletUpdate(w)
}

func asArray(payload any) ([]any, bool) {
	arr, ok := payload.([]any)
	return arr, ok
}

func decodeCandle(v any) (model.Candle, error) {
	var c model.Candle
	if err := redecode(v, &c); err != nil {
		return model.Candle{}, fmt.Errorf("decode candle: %w", err)
	}
	return c, nil
}

func decodeTrade(v any) (model.Trade, error) {
	var t model.Trade
	if err := redecode(v, &t); err != nil {
		return model.Trade{}, fmt.Errorf("decode trade: %w", err)
	}
	return t, nil
}

func decodeWallet(v any) (model.Wallet, error) {
	var w model.Wallet
	if err := redecode(v, &w); err != nil {
		return model.Wallet{}, fmt.Errorf("decode wallet: %w", err)
	}
	return w, nil
}

// redecode round-trips v (already `any`-decoded JSON, typically
// map[string]any) through the encoding/json machinery into dst, so that
// decimal.Decimal's own UnmarshalJSON runs instead of hand-rolled
// map-field digging.
func redecode(v any, dst any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}
