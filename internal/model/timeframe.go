package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Width returns the bucket width of a timeframe identifier such as "1m",
// "5m", "1h", "1D". Mirrors the exchange's own timeframe vocabulary rather
// than inventing a new one.
func Width(tf string) (time.Duration, error) {
	if len(tf) < 2 {
		return 0, fmt.Errorf("model: invalid timeframe %q", tf)
	}
	unit := tf[len(tf)-1]
	numPart := tf[:len(tf)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("model: invalid timeframe %q", tf)
	}
	switch unit {
	case 's', 'S':
		return time.Duration(n) * time.Second, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h', 'H':
		return time.Duration(n) * time.Hour, nil
	case 'D':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'W':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("model: unknown timeframe unit in %q", tf)
	}
}

// MustWidth panics on an invalid timeframe; reserved for construction-time
// validation of engine configuration where a bad value is a fatal
// misconfiguration, not a runtime condition.
func MustWidth(tf string) time.Duration {
	w, err := Width(tf)
	if err != nil {
		panic(err)
	}
	return w
}

// AlignDown floors a millisecond timestamp to the start of its bucket for
// the given timeframe width.
func AlignDown(mts int64, width time.Duration) int64 {
	w := width.Milliseconds()
	if w <= 0 {
		return mts
	}
	return mts - (mts % w)
}

// NormalizeTF trims and lower/upper-cases nothing — timeframe identifiers
// are exchange-defined strings and compared verbatim, but stray whitespace
// from config is stripped.
func NormalizeTF(tf string) string {
	return strings.TrimSpace(tf)
}
