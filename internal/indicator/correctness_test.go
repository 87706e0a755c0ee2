package indicator

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"livestratexec/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func candle(close float64) model.Candle {
	d := decimal.NewFromFloat(close)
	return model.Candle{
		Symbol: "TEST", TF: "1m",
		Open: d, High: d.Add(decimal.NewFromFloat(0.5)), Low: d.Sub(decimal.NewFromFloat(0.5)), Close: d,
	}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after candle 3: (100+102+104)/3 = 102.0000
	// SMA after candle 4: (102+104+103)/3 = 103.0000
	// SMA after candle 5: (104+103+105)/3 = 104.0000

	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(candle(p))
		if sma.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestSMA_Correctness_Period5(t *testing.T) {
	sma := NewSMA(5)
	prices := []float64{10, 11, 12, 13, 14, 15, 16}
	expected := []float64{0, 0, 0, 0, 12.0, 13.0, 14.0}
	ready := []bool{false, false, false, false, true, true, true}

	for i, p := range prices {
		sma.Update(candle(p))
		if sma.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(5)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestSMA_Peek_DoesNotMutate(t *testing.T) {
	sma := NewSMA(3)
	for _, p := range []float64{100, 102, 104} {
		sma.Update(candle(p))
	}
	valueBefore := sma.Value()

	_ = sma.Peek(200)

	assertClose(t, "SMA after Peek", sma.Value(), valueBefore, 0.0001)
}

func TestSMA_Peek_CorrectValue(t *testing.T) {
	sma := NewSMA(3)
	for _, p := range []float64{100, 102, 104} {
		sma.Update(candle(p))
	}
	// Peek with 106 → expected: (102+104+106)/3 = 104
	peekVal := sma.Peek(106)
	assertClose(t, "SMA Peek", peekVal, 104.0, 0.0001)
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5
	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(candle(p))
		if ema.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

func TestEMA_Correctness_Period5(t *testing.T) {
	mult := 2.0 / 6.0
	prices := []float64{44, 44.25, 44.50, 43.75, 44.50, 44.25, 44.00}
	seedExpected := (44.0 + 44.25 + 44.50 + 43.75 + 44.50) / 5.0

	ema2 := NewEMA(5)
	for _, p := range prices[:5] {
		ema2.Update(candle(p))
	}
	assertClose(t, "EMA(5) seed", ema2.Value(), seedExpected, 0.01)

	ema2.Update(candle(prices[5]))
	expected6 := 44.25*mult + seedExpected*(1-mult)
	assertClose(t, "EMA(5) candle 6", ema2.Value(), expected6, 0.01)

	ema2.Update(candle(prices[6]))
	expected7 := 44.00*mult + expected6*(1-mult)
	assertClose(t, "EMA(5) candle 7", ema2.Value(), expected7, 0.01)
}

func TestEMA_Peek_DoesNotMutate(t *testing.T) {
	ema := NewEMA(3)
	for _, p := range []float64{100, 102, 104} {
		ema.Update(candle(p))
	}
	valueBefore := ema.Value()

	ema.Peek(200)

	assertClose(t, "EMA after Peek", ema.Value(), valueBefore, 0.0001)
}

func TestEMA_Peek_CorrectValue(t *testing.T) {
	ema := NewEMA(3)
	for _, p := range []float64{100, 102, 104} {
		ema.Update(candle(p))
	}
	// Peek with 106: EMA = 106*0.5 + 102*0.5 = 104.0
	peekVal := ema.Peek(106)
	assertClose(t, "EMA Peek", peekVal, 104.0, 0.0001)
}

// ────────────────────────────────────────────────────────────
// SMMA Correctness (Wilder's Smoothing)
// ────────────────────────────────────────────────────────────

func TestSMMA_Correctness_Period3(t *testing.T) {
	smma := NewSMMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.3333, 103.2222}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		smma.Update(candle(p))
		if smma.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, smma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMMA(3)", smma.Value(), expected[i], 0.001)
		}
	}
}

func TestSMMA_Peek_DoesNotMutate(t *testing.T) {
	smma := NewSMMA(3)
	for _, p := range []float64{100, 102, 104} {
		smma.Update(candle(p))
	}
	valueBefore := smma.Value()

	smma.Peek(200)

	assertClose(t, "SMMA after Peek", smma.Value(), valueBefore, 0.0001)
}

func TestSMMA_Peek_CorrectValue(t *testing.T) {
	smma := NewSMMA(3)
	for _, p := range []float64{100, 102, 104} {
		smma.Update(candle(p))
	}
	// Peek with 106: SMMA = (102.0 * 2 + 106) / 3 = 310/3 = 103.3333
	peekVal := smma.Peek(106)
	assertClose(t, "SMMA Peek", peekVal, 103.3333, 0.001)
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	prices := []float64{44.00, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}

	rsi2 := NewRSI(5)
	for i := 0; i <= 5; i++ {
		rsi2.Update(candle(prices[i]))
	}
	assertClose(t, "RSI(5) candle 6", rsi2.Value(), 68.112, 0.1)

	rsi2.Update(candle(prices[6]))
	assertClose(t, "RSI(5) candle 7", rsi2.Value(), 72.219, 0.1)

	rsi2.Update(candle(prices[7]))
	assertClose(t, "RSI(5) candle 8", rsi2.Value(), 76.658, 0.1)

	rsi2.Update(candle(prices[8]))
	assertClose(t, "RSI(5) candle 9", rsi2.Value(), 81.509, 0.2)
}

func TestRSI_AllUp_Is100(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(100 + float64(i)))
	}
	assertClose(t, "RSI all up", rsi.Value(), 100.0, 0.001)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(200 - float64(i)))
	}
	assertClose(t, "RSI all down", rsi.Value(), 0.0, 0.001)
}

func TestRSI_Flat_Is100(t *testing.T) {
	// Flat prices: both avgGain and avgLoss are 0 → RSI returns 100 (avgLoss==0 branch)
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(100))
	}
	assertClose(t, "RSI flat", rsi.Value(), 100.0, 0.001)
}

func TestRSI_Peek_DoesNotMutate(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(100 + float64(i)))
	}
	valueBefore := rsi.Value()

	rsi.Peek(50)

	assertClose(t, "RSI after Peek", rsi.Value(), valueBefore, 0.0001)
}

func TestRSI_Peek_CorrectDirection(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(100 + float64(i)))
	}
	// RSI is high (100 = all gains)

	peekDown := rsi.Peek(80) // significant drop
	if peekDown >= rsi.Value() {
		t.Errorf("RSI Peek with lower price should decrease: peek=%.2f, current=%.2f", peekDown, rsi.Value())
	}
}

// ────────────────────────────────────────────────────────────
// Cross-indicator: same data → correct ordering
// ────────────────────────────────────────────────────────────

func TestIndicators_TrendingUp_Ordering(t *testing.T) {
	sma5 := NewSMA(5)
	sma20 := NewSMA(20)
	ema5 := NewEMA(5)

	for i := 0; i < 30; i++ {
		c := candle(100 + float64(i))
		sma5.Update(c)
		sma20.Update(c)
		ema5.Update(c)
	}

	if sma5.Value() <= sma20.Value() {
		t.Errorf("SMA(5) should be > SMA(20) in uptrend: SMA5=%.2f, SMA20=%.2f", sma5.Value(), sma20.Value())
	}
	if ema5.Value() <= sma20.Value() {
		t.Errorf("EMA(5) should be > SMA(20) in uptrend: EMA5=%.2f, SMA20=%.2f", ema5.Value(), sma20.Value())
	}
}

func TestIndicators_TrendingDown_Ordering(t *testing.T) {
	sma5 := NewSMA(5)
	sma20 := NewSMA(20)

	for i := 0; i < 30; i++ {
		c := candle(200 - float64(i))
		sma5.Update(c)
		sma20.Update(c)
	}

	if sma5.Value() >= sma20.Value() {
		t.Errorf("SMA(5) should be < SMA(20) in downtrend: SMA5=%.2f, SMA20=%.2f", sma5.Value(), sma20.Value())
	}
}

// ────────────────────────────────────────────────────────────
// EMA responsiveness vs SMA
// ────────────────────────────────────────────────────────────

func TestEMA_MoreResponsiveThanSMA(t *testing.T) {
	sma := NewSMA(10)
	ema := NewEMA(10)

	for i := 0; i < 20; i++ {
		c := candle(100)
		sma.Update(c)
		ema.Update(c)
	}

	c := candle(120)
	sma.Update(c)
	ema.Update(c)

	if ema.Value() <= sma.Value() {
		t.Errorf("EMA should react more than SMA to sudden price jump: EMA=%.4f, SMA=%.4f", ema.Value(), sma.Value())
	}
}

// ────────────────────────────────────────────────────────────
// Snapshot round-trip correctness
// ────────────────────────────────────────────────────────────

func TestSMA_SnapshotRoundTrip(t *testing.T) {
	sma := NewSMA(5)
	for _, p := range []float64{100, 102, 104, 103, 105, 101} {
		sma.Update(candle(p))
	}
	snap := sma.Snapshot()

	sma2 := NewSMA(5)
	if err := sma2.RestoreFromSnapshot(snap); err != nil {
		t.Fatal(err)
	}

	assertClose(t, "SMA snapshot round-trip", sma2.Value(), sma.Value(), 0.0001)

	sma.Update(candle(107))
	sma2.Update(candle(107))
	assertClose(t, "SMA after restoration + update", sma2.Value(), sma.Value(), 0.0001)
}

func TestEMA_SnapshotRoundTrip(t *testing.T) {
	ema := NewEMA(5)
	for _, p := range []float64{100, 102, 104, 103, 105, 101} {
		ema.Update(candle(p))
	}
	snap := ema.Snapshot()

	ema2 := NewEMA(5)
	if err := ema2.RestoreFromSnapshot(snap); err != nil {
		t.Fatal(err)
	}

	assertClose(t, "EMA snapshot round-trip", ema2.Value(), ema.Value(), 0.0001)

	ema.Update(candle(107))
	ema2.Update(candle(107))
	assertClose(t, "EMA after restoration + update", ema2.Value(), ema.Value(), 0.0001)
}

func TestRSI_SnapshotRoundTrip(t *testing.T) {
	rsi := NewRSI(5)
	prices := []float64{44.00, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10}
	for _, p := range prices {
		rsi.Update(candle(p))
	}
	snap := rsi.Snapshot()

	rsi2 := NewRSI(5)
	if err := rsi2.RestoreFromSnapshot(snap); err != nil {
		t.Fatal(err)
	}

	assertClose(t, "RSI snapshot round-trip", rsi2.Value(), rsi.Value(), 0.0001)

	rsi.Update(candle(45.42))
	rsi2.Update(candle(45.42))
	assertClose(t, "RSI after restoration + update", rsi2.Value(), rsi.Value(), 0.0001)
}

func TestSMMA_SnapshotRoundTrip(t *testing.T) {
	smma := NewSMMA(3)
	for _, p := range []float64{100, 102, 104, 103, 105} {
		smma.Update(candle(p))
	}
	snap := smma.Snapshot()

	smma2 := NewSMMA(3)
	if err := smma2.RestoreFromSnapshot(snap); err != nil {
		t.Fatal(err)
	}

	assertClose(t, "SMMA snapshot round-trip", smma2.Value(), smma.Value(), 0.0001)

	smma.Update(candle(107))
	smma2.Update(candle(107))
	assertClose(t, "SMMA after restoration + update", smma2.Value(), smma.Value(), 0.0001)
}
