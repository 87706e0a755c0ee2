// Package engine implements the Lifecycle Manager (spec §4.9): it wires
// the Throttled Fetcher, Seeder, Event Intake, Queue, Serial Processor,
// Closure Timer, Pause/Resume Controller and Result Emitter around a single
// Strategy instance, and exposes execute/stopExecution/invoke. Grounded on
// the teacher's cmd/mdengine wiring order (channels and collaborators
// constructed leaf-first, then connected) and on internal/indengine's
// Service, which is the teacher's closest analogue to "one long-lived
// orchestrator owning a strategy-shaped processing pipeline".
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"livestratexec/internal/emitter"
	"livestratexec/internal/intake"
	"livestratexec/internal/metrics"
	"livestratexec/internal/model"
	"livestratexec/internal/pause"
	"livestratexec/internal/pricefeed"
	"livestratexec/internal/processor"
	"livestratexec/internal/queue"
	"livestratexec/internal/ratelimit"
	"livestratexec/internal/ringbuf"
	"livestratexec/internal/seed"
	"livestratexec/internal/strategy"
	"livestratexec/internal/watchdog"
)

// candleRingCapacity sizes the SPSC buffer between the WS candles callback,
// which decodes each payload inline, and Event Intake (spec §5: "intake callbacks may fire from any
// I/O context"). Candles are the only high-frequency channel; trades,
// orders and wallet events are handled inline on the callback goroutine.
const candleRingCapacity = 1024

// Options mirrors the engine construction options in spec §6.
type Options struct {
	Symbol           string
	Timeframe        string
	IncludeTrades    bool
	SeedCandleCount  int    // default 5000
	CandlePriceField string // default "close"
}

func (o Options) withDefaults() Options {
	if o.SeedCandleCount == 0 {
		o.SeedCandleCount = 5000
	}
	if o.CandlePriceField == "" {
		o.CandlePriceField = "close"
	}
	return o
}

// Config bundles an Engine's injected collaborators (spec §6).
type Config struct {
	Strategy   strategy.Strategy
	RestClient model.RestClient
	WSManager  model.WSManager
	PerfMgr    model.PerfManager
	Options    Options
	Logger     *slog.Logger
	Now        func() time.Time // overridable for tests; defaults to time.Now

	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics
}

// Engine is the Lifecycle Manager. Construction validates configuration
// fatally (spec §7 item 1: missing WS manager is a configuration error
// surfaced immediately), everything else is created eagerly but idle until
// Execute runs.
type Engine struct {
	cfg   Config
	opts  Options
	log   *slog.Logger
	now   func() time.Time
	width int64

	fetcher   *ratelimit.ThrottledFetcher
	feed      *pricefeed.Feed
	emit      *emitter.Emitter
	queue     *queue.Queue
	wd        *watchdog.Watchdog
	proc      *processor.Processor
	pauseCtrl *pause.Controller
	intake    *intake.Intake
	norm      *intake.Normalizer
	seeder    *seed.Seeder
	candleBuf *ringbuf.Ring
	metrics   *metrics.Metrics

	stopDrain chan struct{}
	stopped   bool
}

// New validates configuration and wires every collaborator. Returns an
// error for missing required collaborators (spec §7 item 1) rather than
// panicking, since construction-time failures are meant to be caught by
// the caller, not crash the process.
func New(cfg Config) (*Engine, error) {
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("engine: strategy is required")
	}
	if cfg.WSManager == nil {
		return nil, fmt.Errorf("engine: WS manager is required")
	}
	if cfg.RestClient == nil {
		return nil, fmt.Errorf("engine: REST client is required")
	}
	if cfg.Options.Symbol == "" {
		return nil, fmt.Errorf("engine: symbol is required")
	}
	if cfg.Options.Timeframe == "" {
		return nil, fmt.Errorf("engine: timeframe is required")
	}

	width, err := model.Width(cfg.Options.Timeframe)
	if err != nil {
		return nil, fmt.Errorf("engine: resolve timeframe width: %w", err)
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	opts := cfg.Options.withDefaults()

	e := &Engine{
		cfg:     cfg,
		opts:    opts,
		log:     log,
		now:     now,
		width:   width.Milliseconds(),
		metrics: cfg.Metrics,
	}

	e.fetcher = ratelimit.New(cfg.RestClient, log)
	e.fetcher.SetMetrics(cfg.Metrics)
	e.feed = pricefeed.New()
	e.emit = emitter.New()
	e.queue = queue.New()
	e.seeder = seed.New(e.fetcher, cfg.Strategy, log)

	e.proc = processor.New(processor.Config{
		Queue:      e.queue,
		Strategy:   cfg.Strategy,
		Emitter:    e.emit,
		PriceFeed:  e.feed,
		PerfMgr:    cfg.PerfMgr,
		WidthMTS:   e.width,
		Symbol:     opts.Symbol,
		Timeframe:  opts.Timeframe,
		PriceField: opts.CandlePriceField,
		Logger:     log,
		Metrics:    cfg.Metrics,
	})

	e.wd = watchdog.New(e.width, func(c model.Candle) {
		e.proc.Enqueue(model.CandleMessage(c))
	}, log)
	e.wd.SetMetrics(cfg.Metrics)
	e.proc.SetWatchdog(e.wd)

	e.pauseCtrl = pause.New(pause.Config{
		Fetcher:   e.fetcher,
		Queue:     e.queue,
		Processor: e.proc,
		Watchdog:  e.wd,
		WidthMTS:  e.width,
		Symbol:    opts.Symbol,
		Timeframe: opts.Timeframe,
		Clock:     func() int64 { return now().UnixMilli() },
		Logger:    log,
		Metrics:   cfg.Metrics,
	})

	e.intake = intake.New(intake.Config{
		Queue:         e.proc,
		Pause:         e.pauseCtrl,
		PriceFeed:     e.feed,
		Symbol:        opts.Symbol,
		Timeframe:     opts.Timeframe,
		IncludeTrades: opts.IncludeTrades,
		Logger:        log,
	})
	e.norm = intake.NewNormalizer(e.intake, log)
	e.candleBuf = ringbuf.New(candleRingCapacity)
	e.stopDrain = make(chan struct{})

	e.registerHandlers()

	return e, nil
}

// registerHandlers attaches Event Intake to the WS manager's channels
// (spec §4.4). Candle payloads are decoded inline and the decoded candles
// pushed onto a lock-free ring buffer instead of handed to Event Intake
// inline, since the candles channel is the only one
// that can arrive fast enough for the callback goroutine to become a
// bottleneck; consumeCandles drains it on a dedicated goroutine.
func (e *Engine) registerHandlers() {
	e.cfg.WSManager.OnWS("candles", nil, func(payload any) {
		e.norm.DecodeCandlePayload(payload, func(c model.Candle) {
			if !e.candleBuf.Push(c) {
				if e.metrics != nil {
					e.metrics.RingBufOverflow.Inc()
				}
				e.log.Warn("engine: candle ring buffer full, dropping candle", "symbol", c.Symbol, "mts", c.MTS)
			}
		})
	})
	e.cfg.WSManager.OnWS("trades", nil, func(payload any) {
		e.norm.HandleTradePayload(payload)
	})
	e.cfg.WSManager.OnWS("auth:oc", nil, func(payload any) {
		e.norm.HandleOrderPayload(payload)
	})
	e.cfg.WSManager.OnWS("auth:ws", nil, func(payload any) {
		e.norm.HandleWalletSnapshotPayload(payload)
	})
	e.cfg.WSManager.OnWS("auth:wu", nil, func(payload any) {
		e.norm.HandleWalletUpdatePayload(payload)
	})
	e.cfg.WSManager.OnWS("close", nil, func(payload any) {
		e.intake.OnSocketClose()
	})
	e.cfg.WSManager.OnWS("open", nil, func(payload any) {
		e.intake.OnSocketOpen(context.Background())
	})
}

// Emitter exposes the Result Emitter so callers can register observers
// before calling Execute.
func (e *Engine) Emitter() *emitter.Emitter { return e.emit }

// Intake exposes the Event Intake handlers for wiring to a concrete
// WS manager's channel subscriptions.
func (e *Engine) Intake() *intake.Intake { return e.intake }

// Execute seeds history, subscribes to live channels, and returns once both
// are complete (spec §4.9). Live processing then continues in the
// background, driven by the WS manager's callbacks.
func (e *Engine) Execute(ctx context.Context) error {
	alignedEnd := model.AlignDown(e.now().UnixMilli(), time.Duration(e.width)*time.Millisecond)
	seedStart := alignedEnd - int64(e.opts.SeedCandleCount)*e.width

	result, err := e.seeder.Seed(ctx, e.opts.Symbol, e.opts.Timeframe, e.width, seedStart, alignedEnd, nil)
	if err != nil {
		return fmt.Errorf("engine: execute: seeding failed: %w", err)
	}
	e.proc.SetState(result.State)
	if result.Seen {
		e.proc.SeedLastCandle(result.LastCandle)
		e.wd.Arm(result.LastCandle)
	}

	if err := e.subscribe(ctx); err != nil {
		return fmt.Errorf("engine: execute: subscribe failed: %w", err)
	}

	go e.consumeCandles()

	e.log.Info("engine: execute complete, live processing active", "symbol", e.opts.Symbol, "tf", e.opts.Timeframe)
	return nil
}

// consumeCandles drains the candle ring buffer and hands each decoded candle
// to Event Intake (OnCandleSingle), on its own goroutine so a burst of candle
// updates never blocks the WS manager's own read loop.
func (e *Engine) consumeCandles() {
	idle := time.NewTicker(time.Millisecond)
	defer idle.Stop()
	for {
		select {
		case <-e.stopDrain:
			return
		case <-idle.C:
			for {
				c, ok := e.candleBuf.Pop()
				if !ok {
					break
				}
				e.intake.OnCandleSingle(c)
			}
		}
	}
}

func (e *Engine) subscribe(ctx context.Context) error {
	return e.cfg.WSManager.WithSocket(func(sock model.Socket) error {
		if err := sock.Subscribe(ctx, "candles", map[string]any{"key": "trade:" + e.opts.Timeframe + ":" + e.opts.Symbol}); err != nil {
			return fmt.Errorf("subscribe candles: %w", err)
		}
		if e.opts.IncludeTrades {
			if err := sock.Subscribe(ctx, "trades", map[string]any{"symbol": e.opts.Symbol}); err != nil {
				return fmt.Errorf("subscribe trades: %w", err)
			}
		}
		if err := sock.Subscribe(ctx, "auth:oc", nil); err != nil {
			return fmt.Errorf("subscribe auth:oc: %w", err)
		}
		if err := sock.Subscribe(ctx, "auth:ws", nil); err != nil {
			return fmt.Errorf("subscribe auth:ws: %w", err)
		}
		if err := sock.Subscribe(ctx, "auth:wu", nil); err != nil {
			return fmt.Errorf("subscribe auth:wu: %w", err)
		}
		return nil
	})
}

// StopExecution latches the terminal state (spec §4.9): invokes the
// strategy's onEnd hook if present, asks it to flatten open positions, then
// stops the processor. Idempotent (spec §8: "stop idempotence").
func (e *Engine) StopExecution() error {
	if e.stopped {
		return nil
	}
	e.stopped = true

	state := e.proc.State()
	if hook, ok := e.cfg.Strategy.(strategy.EndHook); ok {
		next, err := hook.OnEnd(state)
		if err != nil {
			e.emit.EmitError(fmt.Errorf("engine: onEnd: %w", err))
		} else {
			state = next
		}
	}

	if pos := e.cfg.Strategy.GetPosition(state, e.opts.Symbol); pos != nil {
		next, err := e.cfg.Strategy.CloseOpenPositions(state)
		if err != nil {
			e.emit.EmitError(fmt.Errorf("engine: CloseOpenPositions: %w", err))
		} else {
			state = next
		}
	}

	e.proc.SetState(state)
	e.proc.Stop()
	close(e.stopDrain)
	e.wd.Disarm()
	return nil
}

// Invoke funnels an external state mutation through the Processor's serial
// discipline (spec §4.9): state = handler(state). The handler is enqueued
// as an ordinary message and runs on the drain goroutine like every
// strategy callback, so it never races handleCandle/handleTrade/handleOrder
// mutating the same state fields; Invoke itself blocks the caller's
// goroutine until the drain loop reaches it and reports back.
func (e *Engine) Invoke(handler func(any) (any, error)) error {
	req := &model.InvokeRequest{Handler: handler, Result: make(chan error, 1)}
	e.proc.Enqueue(model.InvokeMessage(req))
	if err := <-req.Result; err != nil {
		return fmt.Errorf("engine: invoke: %w", err)
	}
	return nil
}

// Pause manually freezes processing through the Pause/Resume Controller
// (the admin /pause route), the same SetPaused path a socket-close event
// drives — an admin pause and a socket-loss pause are indistinguishable to
// the Processor once frozen.
func (e *Engine) Pause() {
	e.pauseCtrl.OnSocketClose()
}

// Resume lifts a pause via the admin /resume route, replaying the same
// back-fill-then-drain sequence OnSocketOpen runs for a socket reconnect.
func (e *Engine) Resume(ctx context.Context) {
	e.pauseCtrl.OnSocketOpen(ctx)
}

// Paused reports whether the Pause/Resume Controller currently considers
// the engine frozen (admin /status route).
func (e *Engine) Paused() bool {
	return e.pauseCtrl.Paused()
}
