package analytics

import "math"

const (
	// MinOverlap is the smallest aligned sample accepted for any pairwise
	// computation.
	MinOverlap = 10
	// MinRegressionSamples is the smallest aligned sample accepted for the
	// hedge-ratio regression.
	MinRegressionSamples = 50

	// varianceGuard rejects a series whose standard deviation grossly
	// exceeds its mean, which almost always indicates bad feed data.
	varianceGuard = 10.0

	// suspiciousBeta flags fits whose magnitude is implausible for price
	// pairs. The fit is reported with a warning instead of being altered.
	suspiciousBeta = 1000.0
)

// HedgeRatio holds the OLS regression outputs of series A on series B.
type HedgeRatio struct {
	Beta          float64  `json:"beta"`
	Intercept     *float64 `json:"intercept"`
	RValue        *float64 `json:"rvalue"`
	PValue        *float64 `json:"pvalue"`
	StdErr        *float64 `json:"stderr"`
	SuspiciousFit bool     `json:"suspicious_fit,omitempty"`
}

// ComputeHedgeRatio estimates beta of A on B via ordinary least squares.
// Insufficient or degenerate input yields an error wrapping ErrNotComputable.
func ComputeHedgeRatio(pts []AlignedPoint, includeIntercept bool) (HedgeRatio, error) {
	n := len(pts)
	if n < MinOverlap {
		return HedgeRatio{}, notComputable("insufficient overlapping observations: %d (need at least %d)", n, MinOverlap)
	}
	if n < MinRegressionSamples {
		return HedgeRatio{}, notComputable("insufficient data for regression: %d points (need at least %d)", n, MinRegressionSamples)
	}

	var sumA, sumB float64
	for _, p := range pts {
		if p.A <= 0 || p.B <= 0 {
			return HedgeRatio{}, notComputable("price series contains non-positive values")
		}
		sumA += p.A
		sumB += p.B
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)

	var ssA, ssB float64
	for _, p := range pts {
		ssA += (p.A - meanA) * (p.A - meanA)
		ssB += (p.B - meanB) * (p.B - meanB)
	}
	stdA := math.Sqrt(ssA / float64(n-1))
	stdB := math.Sqrt(ssB / float64(n-1))
	if stdA > meanA*varianceGuard || stdB > meanB*varianceGuard {
		return HedgeRatio{}, notComputable("price series has extreme variance, likely data quality issue")
	}

	if includeIntercept {
		return fitWithIntercept(pts, meanA, meanB, ssA, ssB)
	}
	return fitThroughOrigin(pts)
}

func fitWithIntercept(pts []AlignedPoint, meanA, meanB, ssA, ssB float64) (HedgeRatio, error) {
	n := len(pts)

	var sxy float64
	for _, p := range pts {
		sxy += (p.B - meanB) * (p.A - meanA)
	}
	if ssB == 0 {
		return HedgeRatio{}, notComputable("independent series has zero variance")
	}

	beta := sxy / ssB
	intercept := meanA - beta*meanB

	var ssr float64
	for _, p := range pts {
		resid := p.A - beta*p.B - intercept
		ssr += resid * resid
	}

	df := n - 2
	sigma2 := ssr / float64(df)
	stderr := math.Sqrt(sigma2 / ssB)

	rsquared := 0.0
	if ssA > 0 {
		rsquared = 1 - ssr/ssA
	}
	rvalue := math.Sqrt(math.Max(rsquared, 0))

	pvalue := coefPValue(beta, stderr, df)

	return HedgeRatio{
		Beta:          beta,
		Intercept:     &intercept,
		RValue:        &rvalue,
		PValue:        &pvalue,
		StdErr:        &stderr,
		SuspiciousFit: math.Abs(beta) > suspiciousBeta,
	}, nil
}

func fitThroughOrigin(pts []AlignedPoint) (HedgeRatio, error) {
	n := len(pts)

	var sxx, sxy, syy float64
	for _, p := range pts {
		sxx += p.B * p.B
		sxy += p.B * p.A
		syy += p.A * p.A
	}
	if sxx == 0 {
		return HedgeRatio{}, notComputable("independent series has zero variance")
	}

	beta := sxy / sxx

	var ssr float64
	for _, p := range pts {
		resid := p.A - beta*p.B
		ssr += resid * resid
	}

	df := n - 1
	sigma2 := ssr / float64(df)
	stderr := math.Sqrt(sigma2 / sxx)

	// Uncentered R-squared, matching the no-constant regression convention.
	rsquared := 0.0
	if syy > 0 {
		rsquared = 1 - ssr/syy
	}
	rvalue := math.Sqrt(math.Max(rsquared, 0))

	pvalue := coefPValue(beta, stderr, df)

	return HedgeRatio{
		Beta:          beta,
		RValue:        &rvalue,
		PValue:        &pvalue,
		StdErr:        &stderr,
		SuspiciousFit: math.Abs(beta) > suspiciousBeta,
	}, nil
}

func coefPValue(coef, stderr float64, df int) float64 {
	if stderr == 0 {
		return 0
	}
	return studentTTwoSidedP(coef/stderr, df)
}

// Spread computes A - beta*B [- intercept] pointwise over the aligned series.
func Spread(pts []AlignedPoint, hr HedgeRatio) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		v := p.A - hr.Beta*p.B
		if hr.Intercept != nil {
			v -= *hr.Intercept
		}
		out[i] = v
	}
	return out
}
