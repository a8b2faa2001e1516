package formulas

// MaxDrawdown calculates the deepest peak-to-trough fall of an equity
// series, in absolute currency terms. The input is a series of
// account or equity values over time.
//
//	Drawdown(t) = Peak(0..t) - Value(t)
func MaxDrawdown(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	maxDrawdown := 0.0
	peak := values[0]

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if dd := peak - v; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	return maxDrawdown
}
