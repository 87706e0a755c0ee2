package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"livestratexec/internal/emitter"
	"livestratexec/internal/model"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	w, err := New(WriterConfig{DBPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Close(); os.Remove(path) })
	return w, path
}

func TestWriterRunPersistsCandlesAndReaderReadsThemBack(t *testing.T) {
	w, path := newTestWriter(t)

	ch := make(chan model.Candle, 4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { w.Run(ctx, ch); close(done) }()

	ch <- model.Candle{Symbol: "tBTCUSD", TF: "1m", MTS: 1000, Open: decimal.NewFromInt(100), High: decimal.NewFromInt(101), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(100), Volume: decimal.NewFromInt(5)}
	ch <- model.Candle{Symbol: "tBTCUSD", TF: "1m", MTS: 2000, Open: decimal.NewFromInt(100), High: decimal.NewFromInt(102), Low: decimal.NewFromInt(99), Close: decimal.NewFromInt(101), Volume: decimal.NewFromInt(3)}
	close(ch)
	<-done
	cancel()

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	candles, err := r.ReadCandles("tBTCUSD", "1m", 0)
	if err != nil {
		t.Fatalf("ReadCandles: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if !candles[0].Close.Equal(decimal.NewFromInt(100)) {
		t.Errorf("unexpected close: %v", candles[0].Close)
	}

	mts, err := w.GetLastCandleMTS("tBTCUSD", "1m")
	if err != nil {
		t.Fatalf("GetLastCandleMTS: %v", err)
	}
	if mts != 2000 {
		t.Errorf("expected last mts 2000, got %d", mts)
	}
}

func TestWriterRunResultsPersistsSnapshots(t *testing.T) {
	w, _ := newTestWriter(t)

	ch := make(chan emitter.Snapshot, 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { w.RunResults(ctx, ch); close(done) }()

	ch <- emitter.Snapshot{Symbol: "tBTCUSD", TF: "1m", MTS: 1000, Intrabar: false, RealizedPnl: 12.5}
	close(ch)
	<-done
	cancel()

	var count int
	if err := w.db.QueryRow(`SELECT COUNT(*) FROM execution_results`).Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 result row, got %d", count)
	}
}

func TestSaveAndReadLatestStrategyState(t *testing.T) {
	w, path := newTestWriter(t)

	if err := w.SaveStrategyState("tBTCUSD", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("SaveStrategyState: %v", err)
	}
	time.Sleep(time.Millisecond) // created_at has one-second resolution; same-second saves are ordered by id
	if err := w.SaveStrategyState("tBTCUSD", []byte(`{"v":2}`)); err != nil {
		t.Fatalf("SaveStrategyState: %v", err)
	}

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	data, err := r.ReadLatestStrategyState("tBTCUSD")
	if err != nil {
		t.Fatalf("ReadLatestStrategyState: %v", err)
	}
	if string(data) != `{"v":2}` {
		t.Errorf("expected latest state {\"v\":2}, got %s", data)
	}
}

func TestReadLatestStrategyStateNoneReturnsNil(t *testing.T) {
	_, path := newTestWriter(t)

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	data, err := r.ReadLatestStrategyState("unknown")
	if err != nil {
		t.Fatalf("ReadLatestStrategyState: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil, got %v", data)
	}
}
