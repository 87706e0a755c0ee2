package execution

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"livestratexec/internal/strategy"
)

func TestPaperExecutorFillsSignalWithSlippage(t *testing.T) {
	ex := NewPaperExecutor(10, 50) // 50 bps

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan strategy.Signal, 1)
	go ex.Run(ctx, signalCh)

	signalCh <- strategy.Signal{
		StrategyName: "sma-crossover",
		Action:       strategy.ActionBuy,
		Symbol:       "tBTCUSD",
		Qty:          1,
		Price:        100,
		Reason:       "golden cross",
	}

	select {
	case res := <-ex.Results():
		if res.Status != "FILLED" {
			t.Errorf("expected FILLED status, got %q", res.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for fill result")
	}

	fills := ex.GetFills()
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	fill := fills[0]
	if fill.FillPrice <= 100 {
		t.Errorf("expected buy fill price above 100 due to slippage, got %v", fill.FillPrice)
	}
	if fill.Slippage <= 0 {
		t.Errorf("expected positive slippage, got %v", fill.Slippage)
	}
}

func TestPaperExecutorSellSlipsPriceDown(t *testing.T) {
	ex := NewPaperExecutor(10, 50)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan strategy.Signal, 1)
	go ex.Run(ctx, signalCh)

	signalCh <- strategy.Signal{
		StrategyName: "sma-crossover",
		Action:       strategy.ActionSell,
		Symbol:       "tBTCUSD",
		Qty:          1,
		Price:        100,
	}

	<-ex.Results()
	fills := ex.GetFills()
	if fills[0].FillPrice >= 100 {
		t.Errorf("expected sell fill price below 100 due to slippage, got %v", fills[0].FillPrice)
	}
}

func TestJournalRecordAndReadTrades(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewJournal(dbPath)
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	defer j.Close()

	fill := Fill{
		OrderID: "PAPER-1",
		Signal: strategy.Signal{
			StrategyName: "sma-crossover",
			Action:       strategy.ActionBuy,
			Symbol:       "tBTCUSD",
			Reason:       "golden cross",
		},
		FillPrice: 101.5,
		FillQty:   1,
		FilledAt:  time.Now(),
		Slippage:  1.5,
	}
	if err := j.RecordFill(fill); err != nil {
		t.Fatalf("RecordFill: %v", err)
	}

	trades, err := j.GetTrades(10)
	if err != nil {
		t.Fatalf("GetTrades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	got := trades[0]
	if got.Symbol != "tBTCUSD" || got.OrderID != "PAPER-1" || got.Price != 101.5 {
		t.Errorf("unexpected trade record: %+v", got)
	}
}
