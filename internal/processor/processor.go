// Package processor implements the Serial Processor (spec §4.5): the single
// logical consumer that drains the pending-message queue in strict FIFO
// order and invokes strategy callbacks one at a time. Grounded on the
// teacher's strategy.Engine.Run loop — a single goroutine draining a
// channel and dispatching by message kind — adapted from "one shared
// channel serving N registered strategies" to "one queue serving exactly
// one strategy instance", since spec §3 makes strategy state a single-owner
// value rather than something N independent strategies each hold their own
// copy of.
package processor

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"livestratexec/internal/emitter"
	"livestratexec/internal/metrics"
	"livestratexec/internal/model"
	"livestratexec/internal/pricefeed"
	"livestratexec/internal/queue"
	"livestratexec/internal/strategy"
	"livestratexec/internal/watchdog"
)

// PerfManager is the subset of model.PerfManager the Result Emitter needs
// to build a results snapshot (spec §4.8).
type PerfManager = model.PerfManager

// Processor owns strategy state exclusively and drains Queue on a single
// goroutine at a time (spec §5: "at most one strategy callback runs at a
// time and they run in queue order"). Safe to call Enqueue/Stop from any
// goroutine; draining itself never runs concurrently with itself.
type Processor struct {
	mu sync.Mutex // guards processing/paused/stopped and the state fields below

	q          *queue.Queue
	strat      strategy.Strategy
	emit       *emitter.Emitter
	feed       *pricefeed.Feed
	wd         *watchdog.Watchdog
	perf       PerfManager
	widthMTS   int64
	symbol     string
	tf         string
	priceField string
	log        *slog.Logger
	metrics    *metrics.Metrics

	state               any
	lastCandle          *model.Candle
	lastTrade           *model.Trade
	lastPriceFeedUpdate int64
	processing          bool
	paused              bool
	stopped             bool

	wallets map[string]model.Wallet
}

// Config bundles a Processor's collaborators.
type Config struct {
	Queue      *queue.Queue
	Strategy   strategy.Strategy
	Emitter    *emitter.Emitter
	PriceFeed  *pricefeed.Feed
	Watchdog   *watchdog.Watchdog
	PerfMgr    PerfManager
	WidthMTS   int64
	Symbol     string
	Timeframe  string
	// PriceField selects which OHLC field feeds the PriceFeed and PnL
	// calculations (spec §6 "candlePrice"); defaults to "close".
	PriceField string
	Logger     *slog.Logger
	InitState  any
	LastCandle *model.Candle // seeded watermark, if any

	// Metrics is optional; a nil value disables instrumentation (tests
	// construct Processors without one).
	Metrics *metrics.Metrics
}

func New(cfg Config) *Processor {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	priceField := cfg.PriceField
	if priceField == "" {
		priceField = "close"
	}
	return &Processor{
		q:          cfg.Queue,
		strat:      cfg.Strategy,
		emit:       cfg.Emitter,
		feed:       cfg.PriceFeed,
		wd:         cfg.Watchdog,
		perf:       cfg.PerfMgr,
		widthMTS:   cfg.WidthMTS,
		symbol:     cfg.Symbol,
		tf:         cfg.Timeframe,
		priceField: priceField,
		log:        log,
		metrics:    cfg.Metrics,
		state:      cfg.InitState,
		lastCandle: cfg.LastCandle,
		wallets:    make(map[string]model.Wallet),
	}
}

// Enqueue appends a message and kicks off draining if idle. Silently
// discards after Stop (spec §4.5: "after stopped = true, enqueues are
// silently discarded").
func (p *Processor) Enqueue(msg model.Message) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	shouldDrain := !p.processing && !p.paused
	p.mu.Unlock()

	p.q.PushBack(msg)

	if shouldDrain {
		p.drain()
	}
}

// SetPaused toggles the paused flag; while paused, Enqueue appends to the
// queue but never triggers draining (the Pause/Resume Controller resumes
// draining explicitly once it has unshifted back-fill messages).
func (p *Processor) SetPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
}

// Paused reports the current paused state.
func (p *Processor) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// ResumeDraining clears paused and starts draining if idle. Called by the
// Pause/Resume Controller after it has unshifted and re-sorted the queue.
func (p *Processor) ResumeDraining() {
	p.mu.Lock()
	p.paused = false
	shouldDrain := !p.processing
	p.mu.Unlock()
	if shouldDrain {
		p.drain()
	}
}

// Stop latches the terminal state (spec §4.9, §4.5). The in-flight message,
// if any, finishes processing; no further callbacks fire afterward.
func (p *Processor) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
}

// Stopped reports whether Stop has been called.
func (p *Processor) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// State returns the current opaque strategy state.
func (p *Processor) State() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetState overwrites the opaque strategy state directly — used by the
// Lifecycle Manager's invoke() funneling (spec §4.9) and by Seed's handoff
// into live processing.
func (p *Processor) SetState(state any) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}

// SetWatchdog wires the Closure Timer after construction, breaking the
// construction-order cycle between a Processor (which the watchdog's
// fire callback enqueues into) and the Watchdog itself.
func (p *Processor) SetWatchdog(wd *watchdog.Watchdog) {
	p.mu.Lock()
	p.wd = wd
	p.mu.Unlock()
}

// SeedLastCandle primes the closure watermark with the final candle the
// Seeder observed, so the first live candle is compared against real
// history instead of treated as the series' opening bar.
func (p *Processor) SeedLastCandle(c model.Candle) {
	p.mu.Lock()
	updated := c
	p.lastCandle = &updated
	p.mu.Unlock()
}

func (p *Processor) drain() {
	p.mu.Lock()
	if p.processing {
		p.mu.Unlock()
		return
	}
	p.processing = true
	p.mu.Unlock()

	for {
		p.mu.Lock()
		if p.stopped || p.paused {
			p.processing = false
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		msg, ok := p.q.PopFront()
		if !ok {
			break
		}
		if p.metrics != nil {
			p.metrics.QueueDepth.Set(float64(p.q.Len()))
		}
		p.dispatch(msg)
	}

	p.mu.Lock()
	p.processing = false
	p.mu.Unlock()
}

func (p *Processor) dispatch(msg model.Message) {
	if p.metrics != nil {
		p.metrics.MessagesProcessedTotal.Inc()
	}
	var err error
	switch msg.Type {
	case model.MessageCandle:
		err = p.handleCandle(msg.Candle)
	case model.MessageTrade:
		err = p.handleTrade(msg.Trade)
	case model.MessageOrderClose:
		err = p.handleOrder(msg.Order)
	case model.MessageWalletSnapshot:
		p.handleWalletSnapshot(msg.Wallets)
	case model.MessageWalletUpdate:
		if len(msg.Wallets) > 0 {
			p.handleWalletUpdate(msg.Wallets[0])
		}
	case model.MessageInvoke:
		p.handleInvoke(msg.Invoke)
	default:
		p.log.Warn("processor: dropping unknown message type", "type", msg.Type)
	}
	if err != nil {
		p.emit.EmitError(err)
	}
}

func (p *Processor) handleCandle(c model.Candle) error {
	if c.MTS > p.lastPriceFeedUpdate {
		p.feed.Update(c.PriceField(p.priceField).InexactFloat64(), c.MTS)
		p.lastPriceFeedUpdate = c.MTS
	}

	switch {
	case p.lastCandle == nil || p.lastCandle.MTS == c.MTS:
		updated := c
		p.lastCandle = &updated
		p.emitResults(emitKindCandle, true)
		p.rearmWatchdog()
		return nil
	case p.lastCandle.MTS < c.MTS:
		closed := *p.lastCandle
		next, sig, err := p.strat.OnCandle(p.state, closed)
		if err != nil {
			return fmt.Errorf("processor: OnCandle mts=%d: %w", closed.MTS, err)
		}
		p.state = next
		p.noteSignal(sig)
		updated := c
		p.lastCandle = &updated
		if p.metrics != nil {
			p.metrics.CandlesTotal.Inc()
		}
		p.emitResults(emitKindCandle, false)
		p.rearmWatchdog()
		return nil
	default:
		// Older mts than the current bar: drop (spec §4.5).
		if p.metrics != nil {
			p.metrics.DroppedEventsTotal.WithLabelValues("stale-candle").Inc()
		}
		return nil
	}
}

func (p *Processor) handleTrade(t model.Trade) error {
	if p.lastTrade != nil && t.ID <= p.lastTrade.ID {
		if p.metrics != nil {
			p.metrics.DroppedEventsTotal.WithLabelValues("duplicate-trade").Inc()
		}
		return nil
	}
	t.Symbol = p.symbol
	next, sig, err := p.strat.OnTrade(p.state, t)
	if err != nil {
		return fmt.Errorf("processor: OnTrade id=%d: %w", t.ID, err)
	}
	p.state = next
	p.noteSignal(sig)
	updated := t
	p.lastTrade = &updated
	p.emitResults(emitKindTrade, false)
	return nil
}

func (p *Processor) handleOrder(o model.OrderClose) error {
	next, err := p.strat.OnOrder(p.state, o)
	if err != nil {
		return fmt.Errorf("processor: OnOrder: %w", err)
	}
	p.state = next
	return nil
}

// handleInvoke runs an externally-supplied state mutation on the drain
// goroutine (spec §4.9's invoke() funneling), the same serial discipline
// every strategy callback runs under — no lock needed here for the same
// reason handleCandle/handleTrade/handleOrder need none: dispatch never
// runs concurrently with itself.
func (p *Processor) handleInvoke(req *model.InvokeRequest) {
	next, err := req.Handler(p.state)
	if err == nil {
		p.state = next
	}
	req.Result <- err
}

func (p *Processor) handleWalletSnapshot(wallets []model.Wallet) {
	fresh := make(map[string]model.Wallet, len(wallets))
	for _, w := range wallets {
		fresh[w.Key()] = w
	}
	p.wallets = fresh
}

func (p *Processor) handleWalletUpdate(upd model.Wallet) {
	key := upd.Key()
	existing, ok := p.wallets[key]
	if !ok {
		return
	}
	existing.ApplyUpdate(upd)
	p.wallets[key] = existing
}

func (p *Processor) rearmWatchdog() {
	if p.wd == nil || p.lastCandle == nil {
		return
	}
	p.wd.Arm(*p.lastCandle)
}

func (p *Processor) noteSignal(sig *strategy.Signal) {
	if sig == nil {
		return
	}
	p.log.Info("strategy signal", "action", sig.Action, "symbol", sig.Symbol, "qty", sig.Qty, "price", sig.Price, "reason", sig.Reason)
	if p.metrics != nil {
		p.metrics.SignalsTotal.WithLabelValues(string(sig.Action)).Inc()
	}
}

type emitKind int

const (
	emitKindCandle emitKind = iota
	emitKindTrade
)

// emitResults builds and broadcasts a Result Emitter snapshot (spec §4.8).
// intrabar marks a snapshot computed from an in-progress candle update
// rather than a closure — the spec leaves deduping these to observers
// (see DESIGN.md), so the emitter always fires and tags the snapshot
// instead.
func (p *Processor) emitResults(kind emitKind, intrabar bool) {
	price, _ := p.feed.Value()
	switch kind {
	case emitKindCandle:
		if p.lastCandle != nil {
			price = p.lastCandle.PriceField(p.priceField).InexactFloat64()
		}
	case emitKindTrade:
		if p.lastTrade != nil {
			price = p.lastTrade.Price.InexactFloat64()
		}
	}

	pos := p.strat.GetPosition(p.state, p.symbol)
	snap := emitter.Snapshot{
		Symbol:         p.symbol,
		TF:             p.tf,
		Intrabar:       intrabar,
		Position:       pos,
		ReferencePrice: price,
	}
	if p.lastCandle != nil {
		snap.MTS = p.lastCandle.MTS
	}
	if p.metrics != nil && snap.MTS > 0 {
		lag := time.Since(time.UnixMilli(snap.MTS)).Seconds()
		p.metrics.CandleLag.Set(lag)
		p.metrics.E2ELatency.Observe(lag)
	}
	if pos != nil {
		snap.RealizedPnl = p.strat.CalcRealizedPositionPnl(p.state, *pos, price)
		snap.UnrealizedPnl = p.strat.CalcUnrealizedPositionPnl(p.state, *pos, price)
		p.emit.EmitOpenedPosition(emitter.OpenedPosition{Symbol: p.symbol, Position: *pos})
	}
	p.emit.EmitExecutionResults(snap)
}
