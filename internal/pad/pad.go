// Package pad fills gaps in a historical candle series with synthetic
// zero-volume candles carrying the previous close (spec §4.2), the way
// the teacher's tfbuilder fills a forming bucket nothing has arrived for
// yet — except here every bucket in a closed range must end up present,
// not just the newest one.
package pad

import (
	"sort"

	"github.com/shopspring/decimal"

	"livestratexec/internal/model"
)

// Range is the half-open window [Start, End) to pad, in Unix milliseconds.
// Both bounds must be aligned to width for the length invariant in spec §8
// ("padding completeness") to hold.
type Range struct {
	Start int64
	End   int64
}

// Pad guarantees: output length == (End-Start)/width when Start and End
// are width-aligned; every bucket in [Start, End) appears exactly once;
// a missing bucket is filled with a synthetic candle copying the previous
// candle's close, volume zero, stamped at the expected MTS. Head gaps
// (before the first real candle) are back-projected from the first real
// candle's close. Real candles always win over synthetic ones at the same
// MTS.
func Pad(candles []model.Candle, width int64, r Range) []model.Candle {
	if width <= 0 || r.End <= r.Start {
		return nil
	}

	real := make(map[int64]model.Candle, len(candles))
	for _, c := range candles {
		if c.MTS < r.Start || c.MTS >= r.End {
			continue
		}
		if existing, ok := real[c.MTS]; !ok || existing.Synthetic {
			real[c.MTS] = c
		}
	}

	n := int((r.End - r.Start) / width)
	out := make([]model.Candle, 0, n)

	// Seed the back-projection close with the first real candle found at
	// or after Start; until one is seen, head gaps carry that candle's
	// own close once found (there is nothing earlier to project from).
	firstClose, haveFirst := firstCloseAtOrAfter(candles, r.Start, r.End)

	var prevClose decimal.Decimal
	havePrev := false
	if haveFirst {
		prevClose = firstClose
		havePrev = true
	}

	symbol, tf := seriesIdentity(candles)

	for i := 0; i < n; i++ {
		mts := r.Start + int64(i)*width
		if c, ok := real[mts]; ok {
			out = append(out, c)
			prevClose = c.Close
			havePrev = true
			continue
		}
		if !havePrev {
			// No real candle anywhere in range to back-project from;
			// synthesize a flat zero candle so length/coverage still
			// hold.
			out = append(out, model.WithPrevClose(symbol, tf, mts, decimal.Zero))
			continue
		}
		out = append(out, model.WithPrevClose(symbol, tf, mts, prevClose))
	}

	return out
}

func firstCloseAtOrAfter(candles []model.Candle, start, end int64) (decimal.Decimal, bool) {
	best := int64(-1)
	var bestClose decimal.Decimal
	found := false
	for _, c := range candles {
		if c.MTS < start || c.MTS >= end {
			continue
		}
		if !found || c.MTS < best {
			best = c.MTS
			bestClose = c.Close
			found = true
		}
	}
	return bestClose, found
}

func seriesIdentity(candles []model.Candle) (symbol, tf string) {
	if len(candles) == 0 {
		return "", ""
	}
	return candles[0].Symbol, candles[0].TF
}

// SortAscending stable-sorts candles by MTS, real candles first at ties.
// Used wherever a caller needs a normalized, gap-free-ready input before
// calling Pad.
func SortAscending(candles []model.Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		if candles[i].MTS != candles[j].MTS {
			return candles[i].MTS < candles[j].MTS
		}
		return !candles[i].Synthetic && candles[j].Synthetic
	})
}
