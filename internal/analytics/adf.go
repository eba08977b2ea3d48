package analytics

import "math"

// MinADFObservations is the smallest spread sample the stationarity test
// accepts. Callers with fewer observations must skip the test.
const MinADFObservations = 10

// ADFResult summarizes an augmented Dickey-Fuller unit-root test.
type ADFResult struct {
	Statistic      float64            `json:"statistic"`
	PValue         float64            `json:"pvalue"`
	Lags           int                `json:"lags"`
	NObs           int                `json:"nobs"`
	CriticalValues map[string]float64 `json:"critical_values"`
}

// ADFTest runs an augmented Dickey-Fuller test with a constant term on the
// series. NaN values are dropped first. A negative maxLag selects the
// Schwert rule-of-thumb bound, and the used lag is then chosen by AIC over
// 0..maxLag on a common sample.
func ADFTest(series []float64, maxLag int) (ADFResult, error) {
	y := dropNaN(series)
	n := len(y)
	if n < MinADFObservations {
		return ADFResult{}, notComputable("insufficient observations for stationarity test: %d (need at least %d)", n, MinADFObservations)
	}

	if maxLag < 0 {
		maxLag = int(math.Ceil(12 * math.Pow(float64(n)/100, 0.25)))
	}
	// Keep enough residual degrees of freedom for the largest model.
	if limit := n/2 - 3; maxLag > limit {
		maxLag = limit
	}
	if maxLag < 0 {
		maxLag = 0
	}

	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = y[i] - y[i-1]
	}

	// Lag selection: fit every candidate on the sample trimmed to the
	// largest lag so AIC values are comparable.
	bestLag := 0
	bestAIC := math.Inf(1)
	for lag := 0; lag <= maxLag; lag++ {
		fit, err := adfRegression(y, diff, lag, maxLag)
		if err != nil {
			continue
		}
		if fit.aic < bestAIC {
			bestAIC = fit.aic
			bestLag = lag
		}
	}

	// Final regression with the chosen lag on the full available sample.
	fit, err := adfRegression(y, diff, bestLag, bestLag)
	if err != nil {
		return ADFResult{}, err
	}

	crit := mackinnonCriticalValues(fit.nobs)
	return ADFResult{
		Statistic:      fit.tstat,
		PValue:         mackinnonPValue(fit.tstat, crit),
		Lags:           bestLag,
		NObs:           fit.nobs,
		CriticalValues: crit,
	}, nil
}

type adfFit struct {
	tstat float64
	aic   float64
	nobs  int
}

// adfRegression regresses diff[t] on [y[t-1], diff[t-1..t-lag], const],
// starting the sample at index `trim` of the diff series.
func adfRegression(y, diff []float64, lag, trim int) (adfFit, error) {
	start := trim
	if start < lag {
		start = lag
	}
	nobs := len(diff) - start
	k := lag + 2 // level coefficient, lagged diffs, constant
	if nobs <= k {
		return adfFit{}, notComputable("insufficient observations for lag %d", lag)
	}

	dep := make([]float64, nobs)
	design := make([][]float64, nobs)
	for i := 0; i < nobs; i++ {
		t := start + i
		row := make([]float64, k)
		row[0] = y[t] // level lagged once relative to diff[t] = y[t+1]-y[t]
		for j := 1; j <= lag; j++ {
			row[j] = diff[t-j]
		}
		row[k-1] = 1
		design[i] = row
		dep[i] = diff[t]
	}

	coefs, ssr, xtxInvDiag0, err := olsSolve(design, dep)
	if err != nil {
		return adfFit{}, err
	}

	df := nobs - k
	sigma2 := ssr / float64(df)
	se := math.Sqrt(sigma2 * xtxInvDiag0)
	if se == 0 || math.IsNaN(se) {
		return adfFit{}, notComputable("degenerate stationarity regression")
	}

	return adfFit{
		tstat: coefs[0] / se,
		aic:   float64(nobs)*math.Log(ssr/float64(nobs)) + 2*float64(k),
		nobs:  nobs,
	}, nil
}

// olsSolve fits dep = design*b by normal equations with partial pivoting and
// returns the coefficients, the residual sum of squares, and the first
// diagonal element of (X'X)^-1 (used for the unit-root t statistic).
func olsSolve(design [][]float64, dep []float64) ([]float64, float64, float64, error) {
	n := len(design)
	k := len(design[0])

	xtx := make([][]float64, k)
	xty := make([]float64, k)
	for i := 0; i < k; i++ {
		xtx[i] = make([]float64, k)
	}
	for r := 0; r < n; r++ {
		row := design[r]
		for i := 0; i < k; i++ {
			xty[i] += row[i] * dep[r]
			for j := i; j < k; j++ {
				xtx[i][j] += row[i] * row[j]
			}
		}
	}
	for i := 0; i < k; i++ {
		for j := 0; j < i; j++ {
			xtx[i][j] = xtx[j][i]
		}
	}

	coefs, err := solveLinear(cloneMatrix(xtx), append([]float64(nil), xty...))
	if err != nil {
		return nil, 0, 0, err
	}

	// Solve (X'X) z = e0 for the variance of the first coefficient.
	e0 := make([]float64, k)
	e0[0] = 1
	z, err := solveLinear(cloneMatrix(xtx), e0)
	if err != nil {
		return nil, 0, 0, err
	}

	var ssr float64
	for r := 0; r < n; r++ {
		pred := 0.0
		for i := 0; i < k; i++ {
			pred += design[r][i] * coefs[i]
		}
		resid := dep[r] - pred
		ssr += resid * resid
	}

	return coefs, ssr, z[0], nil
}

func solveLinear(a [][]float64, b []float64) ([]float64, error) {
	k := len(b)
	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, notComputable("singular regression matrix")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for r := col + 1; r < k; r++ {
			factor := a[r][col] / a[col][col]
			for c := col; c < k; c++ {
				a[r][c] -= factor * a[col][c]
			}
			b[r] -= factor * b[col]
		}
	}

	x := make([]float64, k)
	for r := k - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < k; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}

func cloneMatrix(m [][]float64) [][]float64 {
	cp := make([][]float64, len(m))
	for i, row := range m {
		cp[i] = append([]float64(nil), row...)
	}
	return cp
}

// mackinnonCriticalValues returns finite-sample critical values for the
// constant-only Dickey-Fuller distribution from the MacKinnon (2010)
// response surface.
func mackinnonCriticalValues(nobs int) map[string]float64 {
	n := float64(nobs)
	return map[string]float64{
		"1%":  -3.43035 - 6.5393/n - 16.786/(n*n) - 79.433/(n*n*n),
		"5%":  -2.86154 - 2.8903/n - 4.234/(n*n) - 40.040/(n*n*n),
		"10%": -2.56677 - 1.5384/n - 2.809/(n*n),
	}
}

// mackinnonPValue approximates the test p-value by interpolating log10(p)
// between the response-surface critical values, clamped at the extremes.
func mackinnonPValue(stat float64, crit map[string]float64) float64 {
	type anchor struct{ stat, logp float64 }
	anchors := []anchor{
		{crit["1%"], math.Log10(0.01)},
		{crit["5%"], math.Log10(0.05)},
		{crit["10%"], math.Log10(0.10)},
	}

	interp := func(lo, hi anchor) float64 {
		slope := (hi.logp - lo.logp) / (hi.stat - lo.stat)
		return lo.logp + slope*(stat-lo.stat)
	}

	var logp float64
	switch {
	case stat <= anchors[0].stat:
		logp = interp(anchors[0], anchors[1])
	case stat >= anchors[2].stat:
		logp = interp(anchors[1], anchors[2])
	case stat <= anchors[1].stat:
		logp = interp(anchors[0], anchors[1])
	default:
		logp = interp(anchors[1], anchors[2])
	}

	p := math.Pow(10, logp)
	if p < 1e-5 {
		p = 1e-5
	}
	if p > 0.9999 {
		p = 0.9999
	}
	return p
}

func dropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out = append(out, v)
	}
	return out
}
