package analytics

import (
	"sort"
	"time"

	"pairstream/internal/market"
)

// DefaultTolerance is the nearest-timestamp matching window used to align
// two tick series.
const DefaultTolerance = time.Second

// AlignedPoint is one observation of both price series at (approximately)
// the same instant.
type AlignedPoint struct {
	TS time.Time
	A  float64
	B  float64
}

// Align matches every tick of series A with the nearest tick of series B
// within the tolerance. Timestamps lacking a counterpart are dropped. Input
// order is not trusted; both series are sorted by time first.
func Align(a, b []market.Tick, tolerance time.Duration) []AlignedPoint {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	as := sortedByTime(a)
	bs := sortedByTime(b)

	out := make([]AlignedPoint, 0, len(as))
	j := 0
	for _, ta := range as {
		// The nearest b index is non-decreasing as ta advances.
		for j+1 < len(bs) && absDuration(bs[j+1].TS.Sub(ta.TS)) <= absDuration(bs[j].TS.Sub(ta.TS)) {
			j++
		}
		if absDuration(bs[j].TS.Sub(ta.TS)) <= tolerance {
			out = append(out, AlignedPoint{TS: ta.TS, A: ta.Price, B: bs[j].Price})
		}
	}
	return out
}

func sortedByTime(ticks []market.Tick) []market.Tick {
	cp := make([]market.Tick, len(ticks))
	copy(cp, ticks)
	sort.Slice(cp, func(i, k int) bool { return cp[i].TS.Before(cp[k].TS) })
	return cp
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
