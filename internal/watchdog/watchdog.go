// Package watchdog implements the Candle Closure Timer (spec §4.6): a
// wall-clock fallback that synthesizes a closing candle when the exchange
// never sends one. The decision rule mirrors the teacher's closedetector —
// arm against a deadline derived from the last observed event, and fire a
// synthetic result if nothing supersedes it in time — adapted from a
// per-tick stability check to a one-shot deadline timer, since here there
// is exactly one bucket to watch at a time rather than a continuous price
// stream to sample.
package watchdog

import (
	"log/slog"
	"sync"
	"time"

	"livestratexec/internal/metrics"
	"livestratexec/internal/model"
)

// GraceMultiplier is how far past the expected bucket close the watchdog
// waits before firing (spec §4.6: 1.5x the timeframe width).
const GraceMultiplier = 1.5

// FireFunc is invoked with a synthesized closing candle when the watchdog
// fires. It runs on the watchdog's internal goroutine; implementations must
// not block and must hand off to the Serial Processor via its own
// synchronization (the Queue).
type FireFunc func(model.Candle)

// Watchdog arms a one-shot timer against the next expected bucket close and
// fires a synthetic candle if nothing disarms or re-arms it first. Disarmed
// while the engine is paused or stopped (spec §4.7, §4.9): a stale socket
// must not produce synthetic candles that will be overwritten by backfill.
type Watchdog struct {
	mu      sync.Mutex
	timer   *time.Timer
	onFire  FireFunc
	log     *slog.Logger
	width   int64
	enabled bool
	metrics *metrics.Metrics
}

func New(width int64, onFire FireFunc, log *slog.Logger) *Watchdog {
	if log == nil {
		log = slog.Default()
	}
	return &Watchdog{onFire: onFire, log: log, width: width, enabled: true}
}

// SetMetrics wires instrumentation after construction, the same
// post-construction pattern internal/processor.SetWatchdog uses to break
// an otherwise-circular construction order.
func (w *Watchdog) SetMetrics(m *metrics.Metrics) {
	w.mu.Lock()
	w.metrics = m
	w.mu.Unlock()
}

// Arm schedules a fire for last.MTS + GraceMultiplier*width, synthesizing a
// flat candle carrying last's close at the next bucket boundary. Any
// previously armed timer is cancelled first (spec: re-arming on every new
// candle keeps the deadline rolling forward).
func (w *Watchdog) Arm(last model.Candle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
	if !w.enabled {
		return
	}

	deadlineMTS := last.MTS + int64(float64(w.width)*GraceMultiplier)
	delay := time.Until(time.UnixMilli(deadlineMTS))
	if delay < 0 {
		delay = 0
	}

	nextMTS := last.MTS + w.width
	candle := model.WithPrevClose(last.Symbol, last.TF, nextMTS, last.PriceField("close"))

	w.timer = time.AfterFunc(delay, func() {
		w.log.Warn("watchdog fired: synthesizing closing candle", "symbol", candle.Symbol, "tf", candle.TF, "mts", candle.MTS)
		w.mu.Lock()
		m := w.metrics
		w.mu.Unlock()
		if m != nil {
			m.WatchdogFiresTotal.Inc()
		}
		w.onFire(candle)
	})
}

// Disarm cancels any pending fire without scheduling a new one. Used when
// the engine pauses (socket loss) or stops.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

// SetEnabled toggles whether future Arm calls take effect; Disarm always
// takes effect regardless. The Pause/Resume Controller disables the
// watchdog for the duration of a pause and re-enables it on resume.
func (w *Watchdog) SetEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = enabled
	if !enabled {
		w.stopLocked()
	}
}

func (w *Watchdog) stopLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
