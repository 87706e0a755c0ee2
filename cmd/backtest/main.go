// cmd/backtest replays historical candles from SQLite through the same
// Serial Processor the live engine drives, so a strategy's callback
// sequence is identical to what it would see live — the only difference is
// where the candles came from.
//
// Usage:
//
//	go run ./cmd/backtest --symbol=tBTCUSD --tf=1m --db=data/candles.db
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"livestratexec/internal/emitter"
	"livestratexec/internal/model"
	"livestratexec/internal/portfolio"
	"livestratexec/internal/pricefeed"
	"livestratexec/internal/processor"
	"livestratexec/internal/queue"
	sqlitestore "livestratexec/internal/store/sqlite"
	"livestratexec/internal/strategy"
)

// backtestObserver collects Result Emitter events for the end-of-run
// summary instead of fanning them out to a dashboard.
type backtestObserver struct {
	errors    int
	positions int
	lastSnap  emitter.Snapshot
	haveSnap  bool
}

func (o *backtestObserver) OnError(err error) {
	o.errors++
	log.Printf("[backtest] strategy error: %v", err)
}

func (o *backtestObserver) OnOpenedPosition(evt emitter.OpenedPosition) {
	o.positions++
}

func (o *backtestObserver) OnExecutionResults(snap emitter.Snapshot) {
	if snap.Intrabar {
		return
	}
	o.lastSnap = snap
	o.haveSnap = true
}

var _ emitter.Observer = (*backtestObserver)(nil)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	symbol := flag.String("symbol", "tBTCUSD", "Symbol to replay")
	tf := flag.String("tf", "1m", "Timeframe to replay")
	dbPath := flag.String("db", "data/candles.db", "Path to SQLite database")
	fromMTS := flag.Int64("from", 0, "Replay candles with mts strictly after this Unix-ms watermark")
	capital := flag.Float64("capital", 10000, "Starting capital for the portfolio PerfManager")
	fastPeriod := flag.Int("fast", 9, "SMA crossover fast period")
	slowPeriod := flag.Int("slow", 21, "SMA crossover slow period")
	qty := flag.Float64("qty", 0.01, "Position size per signal")
	enableRSI := flag.Bool("rsi", true, "Filter crossover signals with an RSI overbought/oversold check")
	rsiPeriod := flag.Int("rsi-period", 14, "RSI period")
	flag.Parse()

	reader, err := sqlitestore.NewReader(*dbPath)
	if err != nil {
		log.Fatalf("[backtest] sqlite open failed: %v", err)
	}
	defer reader.Close()

	candles, err := reader.ReadCandles(*symbol, *tf, *fromMTS)
	if err != nil {
		log.Fatalf("[backtest] read candles failed: %v", err)
	}
	if len(candles) == 0 {
		log.Fatalf("[backtest] no candles found for %s/%s after mts=%d", *symbol, *tf, *fromMTS)
	}
	log.Printf("[backtest] replaying %d candles for %s/%s", len(candles), *symbol, *tf)

	strat := strategy.NewSMACrossover(*fastPeriod, *slowPeriod, *qty, *enableRSI, *rsiPeriod, slog.Default())
	pf := portfolio.New(*capital)
	emit := emitter.New()
	obs := &backtestObserver{}
	emit.Subscribe(obs)

	proc := processor.New(processor.Config{
		Queue:     queue.New(),
		Strategy:  strat,
		Emitter:   emit,
		PriceFeed: pricefeed.New(),
		PerfMgr:   pf,
		Symbol:    *symbol,
		Timeframe: *tf,
		Logger:    slog.Default(),
	})

	for _, c := range candles {
		pf.UpdatePrice(c)
		proc.Enqueue(model.CandleMessage(c))
	}

	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║          BACKTEST COMPLETE            ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Candles processed: %-16d ║\n", len(candles))
	fmt.Printf("║  Positions opened:  %-16d ║\n", obs.positions)
	fmt.Printf("║  Strategy errors:   %-16d ║\n", obs.errors)
	if obs.haveSnap {
		fmt.Printf("║  Realized PnL:      %-16.4f ║\n", obs.lastSnap.RealizedPnl)
		fmt.Printf("║  Unrealized PnL:    %-16.4f ║\n", obs.lastSnap.UnrealizedPnl)
	}
	fmt.Printf("║  Portfolio return:  %-15.2f%% ║\n", pf.ReturnPerc())
	fmt.Printf("║  Max drawdown:      %-15.2f%% ║\n", pf.Drawdown()*100)
	fmt.Println("╚══════════════════════════════════════╝")

	os.Exit(0)
}
