package analytics

import (
	"time"

	"pairstream/internal/market"
)

// PairOptions controls a pairwise analytics computation.
type PairOptions struct {
	Window           int
	IncludeIntercept bool
	IncludeADF       bool
	Tolerance        time.Duration
}

// PairAnalytics is the combined result of one pairwise computation. Pointer
// fields are nil when the underlying metric was not computable; partial
// results are valid outputs.
type PairAnalytics struct {
	HedgeRatio         HedgeRatio `json:"hedge_ratio"`
	LatestSpread       *float64   `json:"latest_spread"`
	LatestZScore       *float64   `json:"latest_zscore"`
	RollingCorrelation *float64   `json:"rolling_correlation"`
	ADF                *ADFResult `json:"adf"`
}

// ComputePair aligns the two tick series and derives the hedge ratio,
// spread, rolling z-score, rolling correlation, and (optionally) the
// stationarity test. An error wrapping ErrNotComputable means the pair has
// no usable result this cycle; callers omit rather than fail.
func ComputePair(ticksA, ticksB []market.Tick, opts PairOptions) (PairAnalytics, error) {
	if len(ticksA) == 0 || len(ticksB) == 0 {
		return PairAnalytics{}, notComputable("empty price series")
	}

	pts := Align(ticksA, ticksB, opts.Tolerance)
	hr, err := ComputeHedgeRatio(pts, opts.IncludeIntercept)
	if err != nil {
		return PairAnalytics{}, err
	}

	spread := Spread(pts, hr)
	window := opts.Window
	if window > len(spread) {
		window = len(spread)
	}
	if window < minRollingPeriods {
		window = minRollingPeriods
	}

	result := PairAnalytics{HedgeRatio: hr}
	if len(spread) > 0 {
		v := spread[len(spread)-1]
		result.LatestSpread = &v
	}
	if zs, err := RollingZScore(spread, window); err == nil && len(zs) > 0 {
		v := zs[len(zs)-1]
		result.LatestZScore = &v
	}
	if corr, err := RollingCorrelation(pts, window); err == nil && len(corr) > 0 {
		v := corr[len(corr)-1]
		result.RollingCorrelation = &v
	}
	if opts.IncludeADF && len(spread) >= MinADFObservations {
		if adf, err := ADFTest(spread, -1); err == nil {
			result.ADF = &adf
		}
	}
	return result, nil
}
