// Package pause implements the Pause/Resume Controller (spec §4.7): freeze
// processing on socket loss, back-fill the gap via the Fetcher on socket
// restore, and splice the back-fill into the pending queue ahead of
// whatever arrived live during the outage. Grounded on the same
// arm/disarm discipline as internal/watchdog, since both react to the
// same socket open/close signal the teacher's smartconnect WS client
// exposes as callbacks.
package pause

import (
	"context"
	"log/slog"

	"livestratexec/internal/metrics"
	"livestratexec/internal/model"
	"livestratexec/internal/pad"
	"livestratexec/internal/queue"
	"livestratexec/internal/watchdog"
)

// LookbackMS is how far before the pause started the resume back-fill
// reaches back to, covering clock skew and boundary candles (spec §4.7).
const LookbackMS = 120000

// Clock abstracts wall-clock "now" so tests can control it without
// sleeping. Production wiring passes a func returning time.Now().UnixMilli().
type Clock func() int64

// Fetcher is the subset of ratelimit.ThrottledFetcher the controller needs.
type Fetcher interface {
	FetchCandles(ctx context.Context, symbol, timeframe string, query model.CandleQuery) ([]model.Candle, error)
}

// Processor is the subset of processor.Processor the controller drives.
type Processor interface {
	SetPaused(bool)
	ResumeDraining()
}

// Controller tracks the paused window and performs the resume back-fill.
// Not safe for concurrent Open/Close calls from multiple goroutines — the
// WS manager is expected to deliver open/close events serially, same as
// the teacher's reconnect handler does.
type Controller struct {
	fetcher   Fetcher
	queue     *queue.Queue
	processor Processor
	wd        *watchdog.Watchdog
	width     int64
	symbol    string
	tf        string
	clock     Clock
	log       *slog.Logger
	metrics   *metrics.Metrics

	paused   bool
	pausedOn int64
}

type Config struct {
	Fetcher   Fetcher
	Queue     *queue.Queue
	Processor Processor
	Watchdog  *watchdog.Watchdog
	WidthMTS  int64
	Symbol    string
	Timeframe string
	Clock     Clock
	Logger    *slog.Logger

	// Metrics is optional; a nil value disables instrumentation.
	Metrics *metrics.Metrics
}

func New(cfg Config) *Controller {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		fetcher:   cfg.Fetcher,
		queue:     cfg.Queue,
		processor: cfg.Processor,
		wd:        cfg.Watchdog,
		width:     cfg.WidthMTS,
		symbol:    cfg.Symbol,
		tf:        cfg.Timeframe,
		clock:     cfg.Clock,
		log:       log,
		metrics:   cfg.Metrics,
	}
}

// OnSocketClose records the pause start and freezes processing. A close
// while already paused is a no-op (spec §4.7: "if not already paused").
func (c *Controller) OnSocketClose() {
	if c.paused {
		return
	}
	c.paused = true
	c.pausedOn = c.clock()
	if c.wd != nil {
		c.wd.SetEnabled(false)
	}
	c.processor.SetPaused(true)
	if c.metrics != nil {
		c.metrics.PausesTotal.Inc()
	}
	c.log.Warn("pause: socket closed, freezing processing", "pausedOn", c.pausedOn)
}

// OnSocketOpen, called while paused, back-fills the gap and resumes
// draining. A no-op if not currently paused (a fresh connect, not a
// reconnect).
func (c *Controller) OnSocketOpen(ctx context.Context) {
	if !c.paused {
		return
	}
	resumedOn := c.clock()
	start := c.pausedOn - LookbackMS

	candles, err := c.fetcher.FetchCandles(ctx, c.symbol, c.tf, model.CandleQuery{
		Start: start,
		End:   resumedOn,
		Sort:  1,
	})
	if err != nil {
		// Pause-resume fetch failures are logged and swallowed (spec §7
		// item 3): resume without back-fill rather than stall forever.
		c.log.Error("pause: resume back-fill fetch failed, resuming without back-fill", "error", err)
		c.clearAndResume()
		return
	}

	pad.SortAscending(candles)
	padded := pad.Pad(candles, c.width, pad.Range{Start: alignDown(start, c.width), End: alignDown(resumedOn, c.width) + c.width})

	backfill := make([]model.Message, 0, len(padded))
	for _, cc := range padded {
		cc.Symbol = c.symbol
		cc.TF = c.tf
		backfill = append(backfill, model.CandleMessage(cc))
	}

	c.queue.UnshiftAndSort(backfill)
	c.log.Info("pause: resumed with back-fill", "pausedOn", c.pausedOn, "resumedOn", resumedOn, "backfilled", len(backfill))
	c.clearAndResume()
}

func (c *Controller) clearAndResume() {
	c.paused = false
	c.pausedOn = 0
	if c.wd != nil {
		c.wd.SetEnabled(true)
	}
	c.processor.ResumeDraining()
}

// Paused reports whether the controller currently considers the stream
// paused.
func (c *Controller) Paused() bool {
	return c.paused
}

func alignDown(mts, width int64) int64 {
	if width <= 0 {
		return mts
	}
	rem := mts % width
	if rem < 0 {
		rem += width
	}
	return mts - rem
}
