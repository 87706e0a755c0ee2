// Package intake implements Event Intake (spec §4.4): WS subscription
// handlers that normalize exchange payloads into queue messages. Grounded
// on the teacher's ws.Ingest — OnOpen/OnData/OnClose/OnError callbacks
// wired against a WS client — adapted from a single tick stream to the
// spec's five channel kinds (candles, trades, order-close, wallet
// snapshot/update) and from a tick-aggregation pipeline to direct
// queue enqueue, since gap-filling and resampling are Seeder/Padder
// concerns here rather than Intake's.
package intake

import (
	"context"
	"log/slog"

	"livestratexec/internal/model"
)

// Enqueuer is the subset of processor.Processor Intake needs.
type Enqueuer interface {
	Enqueue(model.Message)
}

// PauseController is the subset of pause.Controller Intake drives off
// socket open/close events.
type PauseController interface {
	OnSocketClose()
	OnSocketOpen(ctx context.Context)
}

// PriceFeed is the subset of pricefeed.Feed Intake pushes trade prices
// into.
type PriceFeed interface {
	Update(price float64, mts int64)
}

// Intake wires WS channel handlers to the queue and the Pause controller,
// per the §4.4 rules table.
type Intake struct {
	queue  Enqueuer
	pause  PauseController
	feed   PriceFeed
	symbol string
	tf     string

	includeTrades bool

	lastPriceFeedUpdate int64
	log                 *slog.Logger
}

type Config struct {
	Queue         Enqueuer
	Pause         PauseController
	PriceFeed     PriceFeed
	Symbol        string
	Timeframe     string
	IncludeTrades bool
	Logger        *slog.Logger
}

func New(cfg Config) *Intake {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Intake{
		queue:         cfg.Queue,
		pause:         cfg.Pause,
		feed:          cfg.PriceFeed,
		symbol:        cfg.Symbol,
		tf:            cfg.Timeframe,
		includeTrades: cfg.IncludeTrades,
		log:           log,
	}
}

// OnCandleSnapshot drops multi-candle snapshots: seeding owns history
// (spec §4.4).
func (in *Intake) OnCandleSnapshot(candles []model.Candle) {
	if len(candles) > 1 {
		return
	}
	for _, c := range candles {
		in.OnCandleSingle(c)
	}
}

// OnCandleSingle stamps symbol/tf and enqueues a live candle update.
func (in *Intake) OnCandleSingle(c model.Candle) {
	c.Symbol = in.symbol
	c.TF = in.tf
	in.queue.Enqueue(model.CandleMessage(c))
}

// OnTradeSnapshot drops trade snapshots unconditionally (spec §4.4).
func (in *Intake) OnTradeSnapshot(trades []model.Trade) {}

// OnTradeSingle enqueues a live trade iff includeTrades is set, and always
// pushes its price to the PriceFeed when its mts is newer than the last
// push — the PriceFeed update is independent of whether the trade itself
// is queued, per §4.4's two separate rules for "trade single" and "trade
// price".
func (in *Intake) OnTradeSingle(t model.Trade) {
	if t.MTS > in.lastPriceFeedUpdate {
		in.feed.Update(t.Price.InexactFloat64(), t.MTS)
		in.lastPriceFeedUpdate = t.MTS
	}
	if !in.includeTrades {
		return
	}
	t.Symbol = in.symbol
	in.queue.Enqueue(model.TradeMessage(t))
}

// OnOrderClose enqueues an opaque order-close payload.
func (in *Intake) OnOrderClose(raw any) {
	in.queue.Enqueue(model.OrderCloseMessage(raw))
}

// OnWalletSnapshot enqueues a full wallet-set replacement.
func (in *Intake) OnWalletSnapshot(wallets []model.Wallet) {
	in.queue.Enqueue(model.WalletSnapshotMessage(wallets))
}

// OnWalletUpdate enqueues a single wallet mutation.
func (in *Intake) OnWalletUpdate(w model.Wallet) {
	in.queue.Enqueue(model.WalletUpdateMessage(w))
}

// OnSocketClose drives the Pause controller on socket loss.
func (in *Intake) OnSocketClose() {
	in.pause.OnSocketClose()
}

// OnSocketOpen drives the Pause controller's resume back-fill.
func (in *Intake) OnSocketOpen(ctx context.Context) {
	in.pause.OnSocketOpen(ctx)
}
