package analytics

import (
	"sort"
	"time"

	"pairstream/internal/market"
)

// Bar is one OHLCV candle aggregated from ticks.
type Bar struct {
	Start  time.Time `json:"start"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Resample aggregates ticks into OHLCV bars of the given interval. Ticks are
// bucketed by truncated timestamp; empty buckets produce no bar.
func Resample(ticks []market.Tick, interval time.Duration) []Bar {
	if len(ticks) == 0 || interval <= 0 {
		return nil
	}

	buckets := make(map[int64]*Bar)
	for _, t := range sortedByTime(ticks) {
		start := t.TS.Truncate(interval)
		key := start.UnixNano()

		bar, ok := buckets[key]
		if !ok {
			buckets[key] = &Bar{
				Start:  start,
				Open:   t.Price,
				High:   t.Price,
				Low:    t.Price,
				Close:  t.Price,
				Volume: t.Size,
			}
			continue
		}
		if t.Price > bar.High {
			bar.High = t.Price
		}
		if t.Price < bar.Low {
			bar.Low = t.Price
		}
		bar.Close = t.Price
		bar.Volume += t.Size
	}

	out := make([]Bar, 0, len(buckets))
	for _, bar := range buckets {
		out = append(out, *bar)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Start.Before(out[k].Start) })
	return out
}

// BarsToTicks converts bars back into close-priced ticks so bar series can
// flow through the tick-based analytics.
func BarsToTicks(symbol string, bars []Bar) []market.Tick {
	out := make([]market.Tick, len(bars))
	for i, bar := range bars {
		out[i] = market.Tick{
			Symbol: symbol,
			TS:     bar.Start.UTC(),
			Price:  bar.Close,
			Size:   bar.Volume,
		}
	}
	return out
}
