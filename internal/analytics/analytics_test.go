package analytics_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairstream/internal/analytics"
	"pairstream/internal/market"
)

func series(symbol string, prices []float64, step time.Duration) []market.Tick {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	out := make([]market.Tick, len(prices))
	for i, p := range prices {
		out[i] = market.Tick{
			Symbol: symbol,
			TS:     base.Add(time.Duration(i) * step),
			Price:  p,
			Size:   1,
		}
	}
	return out
}

func linearPrices(n int, start, slope float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + slope*float64(i)
	}
	return out
}

func TestAlignDropsUnmatchedTimestamps(t *testing.T) {
	a := series("aaa", []float64{1, 2, 3}, time.Second)
	b := series("bbb", []float64{10, 20}, time.Second)
	// Shift B far away so only partial overlap survives the tolerance.
	b[1].TS = b[1].TS.Add(10 * time.Second)

	pts := analytics.Align(a, b, time.Second)
	require.Len(t, pts, 2) // a[0] and a[1] both match b[0] within 1s
	assert.Equal(t, 10.0, pts[0].B)
}

func TestAlignNearestWithinTolerance(t *testing.T) {
	a := series("aaa", []float64{1, 2, 3, 4}, time.Second)
	b := series("bbb", []float64{10, 20, 30, 40}, time.Second)
	for i := range b {
		b[i].TS = b[i].TS.Add(300 * time.Millisecond)
	}

	pts := analytics.Align(a, b, time.Second)
	require.Len(t, pts, 4)
	for i, p := range pts {
		assert.Equal(t, float64((i+1)*10), p.B, "point %d matched wrong neighbor", i)
	}
}

func TestHedgeRatioIdenticalSeriesNoIntercept(t *testing.T) {
	prices := linearPrices(60, 100, 0.5)
	a := series("aaa", prices, time.Second)
	b := series("bbb", prices, time.Second)

	pts := analytics.Align(a, b, time.Second)
	hr, err := analytics.ComputeHedgeRatio(pts, false)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, hr.Beta, 1e-9)
	assert.Nil(t, hr.Intercept)
	require.NotNil(t, hr.RValue)
	assert.InDelta(t, 1.0, *hr.RValue, 1e-9)
	assert.False(t, hr.SuspiciousFit)
}

func TestHedgeRatioWithIntercept(t *testing.T) {
	bPrices := linearPrices(80, 50, 1)
	aPrices := make([]float64, len(bPrices))
	for i, p := range bPrices {
		aPrices[i] = 2*p + 7
	}
	pts := analytics.Align(series("aaa", aPrices, time.Second), series("bbb", bPrices, time.Second), time.Second)

	hr, err := analytics.ComputeHedgeRatio(pts, true)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, hr.Beta, 1e-9)
	require.NotNil(t, hr.Intercept)
	assert.InDelta(t, 7.0, *hr.Intercept, 1e-6)
	require.NotNil(t, hr.PValue)
	assert.Less(t, *hr.PValue, 0.001)
}

func TestHedgeRatioInsufficientOverlap(t *testing.T) {
	a := series("aaa", linearPrices(5, 100, 1), time.Second)
	b := series("bbb", linearPrices(5, 100, 1), time.Second)

	_, err := analytics.ComputeHedgeRatio(analytics.Align(a, b, time.Second), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, analytics.ErrNotComputable)
}

func TestHedgeRatioRejectsNonPositivePrices(t *testing.T) {
	prices := linearPrices(60, 100, 1)
	prices[10] = -5
	a := series("aaa", prices, time.Second)
	b := series("bbb", linearPrices(60, 100, 1), time.Second)

	_, err := analytics.ComputeHedgeRatio(analytics.Align(a, b, time.Second), true)
	assert.ErrorIs(t, err, analytics.ErrNotComputable)
}

func TestSpreadWithZeroBetaEqualsSeriesA(t *testing.T) {
	a := series("aaa", []float64{101, 102, 103}, time.Second)
	b := series("bbb", []float64{50, 51, 52}, time.Second)
	pts := analytics.Align(a, b, time.Second)

	spread := analytics.Spread(pts, analytics.HedgeRatio{Beta: 0})
	require.Len(t, spread, 3)
	for i, p := range pts {
		assert.Equal(t, p.A, spread[i])
	}
}

func TestRollingZScoreExcludesZeroStdWindows(t *testing.T) {
	flat := []float64{5, 5, 5, 5, 5}
	zs, err := analytics.RollingZScore(flat, 3)
	require.NoError(t, err)
	assert.Empty(t, zs, "constant windows must produce no z-scores")

	mixed := []float64{5, 5, 5, 8, 5}
	zs, err = analytics.RollingZScore(mixed, 3)
	require.NoError(t, err)
	require.NotEmpty(t, zs)
	for _, z := range zs {
		assert.False(t, math.IsNaN(z))
		assert.False(t, math.IsInf(z, 0))
	}
}

func TestRollingZScoreRejectsWindowOfOne(t *testing.T) {
	_, err := analytics.RollingZScore([]float64{1, 2, 3}, 1)
	assert.ErrorIs(t, err, analytics.ErrNotComputable)
}

func TestRollingCorrelationBounds(t *testing.T) {
	a := series("aaa", []float64{1, 2, 3, 4, 5, 6, 5, 4, 3, 2}, time.Second)
	b := series("bbb", []float64{2, 4, 6, 8, 10, 12, 10, 8, 6, 4}, time.Second)
	pts := analytics.Align(a, b, time.Second)

	corr, err := analytics.RollingCorrelation(pts, 4)
	require.NoError(t, err)
	require.NotEmpty(t, corr)
	for _, r := range corr {
		assert.GreaterOrEqual(t, r, -1.0-1e-12)
		assert.LessOrEqual(t, r, 1.0+1e-12)
	}
	// Perfectly proportional series correlate at 1.
	assert.InDelta(t, 1.0, corr[0], 1e-9)
}

func TestADFRejectsShortSeries(t *testing.T) {
	_, err := analytics.ADFTest([]float64{1, 2, 3}, -1)
	assert.ErrorIs(t, err, analytics.ErrNotComputable)
}

func TestADFOnMeanRevertingSeries(t *testing.T) {
	// Strongly mean-reverting AR(1): x_t = 0.2*x_{t-1} + e_t with a
	// deterministic pseudo-noise term.
	n := 200
	x := make([]float64, n)
	x[0] = 1
	for i := 1; i < n; i++ {
		noise := math.Sin(float64(i)*1.7) * 0.5
		x[i] = 0.2*x[i-1] + noise
	}

	res, err := analytics.ADFTest(x, -1)
	require.NoError(t, err)

	assert.Negative(t, res.Statistic)
	assert.Less(t, res.Statistic, res.CriticalValues["5%"], "mean-reverting series should reject a unit root at 5%%")
	assert.Less(t, res.PValue, 0.05)
	assert.GreaterOrEqual(t, res.Lags, 0)
	assert.Greater(t, res.NObs, 0)
	require.Contains(t, res.CriticalValues, "1%")
	assert.Less(t, res.CriticalValues["1%"], res.CriticalValues["5%"])
	assert.Less(t, res.CriticalValues["5%"], res.CriticalValues["10%"])
}

func TestADFDropsNaNs(t *testing.T) {
	x := make([]float64, 60)
	for i := range x {
		x[i] = math.Sin(float64(i) * 0.9)
	}
	x[5] = math.NaN()
	x[17] = math.Inf(1)

	res, err := analytics.ADFTest(x, -1)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(res.Statistic))
}

func TestComputePairPartialResults(t *testing.T) {
	bPrices := make([]float64, 120)
	aPrices := make([]float64, 120)
	for i := range bPrices {
		bPrices[i] = 100 + math.Sin(float64(i)*0.3)
		aPrices[i] = 1.5*bPrices[i] + math.Cos(float64(i)*0.7)*0.2
	}
	a := series("aaa", aPrices, time.Second)
	b := series("bbb", bPrices, time.Second)

	res, err := analytics.ComputePair(a, b, analytics.PairOptions{
		Window:           30,
		IncludeIntercept: true,
		IncludeADF:       false,
	})
	require.NoError(t, err)

	assert.InDelta(t, 1.5, res.HedgeRatio.Beta, 0.1)
	assert.NotNil(t, res.LatestSpread)
	assert.NotNil(t, res.LatestZScore)
	assert.NotNil(t, res.RollingCorrelation)
	assert.Nil(t, res.ADF, "ADF must be omitted unless requested")

	withADF, err := analytics.ComputePair(a, b, analytics.PairOptions{
		Window:           30,
		IncludeIntercept: true,
		IncludeADF:       true,
	})
	require.NoError(t, err)
	assert.NotNil(t, withADF.ADF)
}

func TestComputePairEmptySeriesNotComputable(t *testing.T) {
	b := series("bbb", linearPrices(60, 100, 1), time.Second)
	_, err := analytics.ComputePair(nil, b, analytics.PairOptions{Window: 10, IncludeIntercept: true})
	assert.ErrorIs(t, err, analytics.ErrNotComputable)
}

func TestResampleOHLCV(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ticks := []market.Tick{
		{Symbol: "btcusdt", TS: base, Price: 100, Size: 1},
		{Symbol: "btcusdt", TS: base.Add(10 * time.Second), Price: 105, Size: 2},
		{Symbol: "btcusdt", TS: base.Add(20 * time.Second), Price: 95, Size: 1},
		{Symbol: "btcusdt", TS: base.Add(70 * time.Second), Price: 98, Size: 3},
	}

	bars := analytics.Resample(ticks, time.Minute)
	require.Len(t, bars, 2)

	first := bars[0]
	assert.Equal(t, 100.0, first.Open)
	assert.Equal(t, 105.0, first.High)
	assert.Equal(t, 95.0, first.Low)
	assert.Equal(t, 95.0, first.Close)
	assert.Equal(t, 4.0, first.Volume)

	assert.Equal(t, 98.0, bars[1].Close)

	back := analytics.BarsToTicks("btcusdt", bars)
	require.Len(t, back, 2)
	assert.Equal(t, 95.0, back[0].Price)
}
