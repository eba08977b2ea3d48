package analytics

import "math"

// minRollingPeriods lets rolling statistics start producing values before a
// full window has accumulated.
const minRollingPeriods = 2

// RollingZScore returns the rolling z-score of values over the given window.
// Points whose window has fewer than two observations or zero standard
// deviation are excluded from the output; no NaN ever leaks to callers.
func RollingZScore(values []float64, window int) ([]float64, error) {
	if window <= 1 {
		return nil, notComputable("rolling window must be greater than 1")
	}

	out := make([]float64, 0, len(values))
	for i := range values {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		win := values[lo : i+1]
		if len(win) < minRollingPeriods {
			continue
		}
		mean, std := meanStd(win)
		if std <= 0 {
			continue
		}
		z := (values[i] - mean) / std
		if math.IsNaN(z) || math.IsInf(z, 0) {
			continue
		}
		out = append(out, z)
	}
	return out, nil
}

// RollingCorrelation returns the windowed Pearson correlation between the two
// aligned series. Windows with degenerate variance produce no output.
func RollingCorrelation(pts []AlignedPoint, window int) ([]float64, error) {
	if window <= 1 {
		return nil, notComputable("rolling window must be greater than 1")
	}

	out := make([]float64, 0, len(pts))
	for i := range pts {
		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		win := pts[lo : i+1]
		if len(win) < minRollingPeriods {
			continue
		}
		r, ok := pearson(win)
		if !ok {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func meanStd(values []float64) (mean, std float64) {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / n

	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	if len(values) < 2 {
		return mean, 0
	}
	return mean, math.Sqrt(ss / (n - 1))
}

func pearson(win []AlignedPoint) (float64, bool) {
	n := float64(len(win))

	var sumA, sumB float64
	for _, p := range win {
		sumA += p.A
		sumB += p.B
	}
	meanA := sumA / n
	meanB := sumB / n

	var cov, varA, varB float64
	for _, p := range win {
		da := p.A - meanA
		db := p.B - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA <= 0 || varB <= 0 {
		return 0, false
	}

	r := cov / math.Sqrt(varA*varB)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, false
	}
	return r, true
}
