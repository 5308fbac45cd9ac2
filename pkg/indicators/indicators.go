// Package indicators implements the derived series computed for each daily
// price history: one-day returns, simple and exponential moving averages, and
// Wilder's RSI. All functions operate on a single symbol's closes ordered
// oldest to newest and use NaN as the in-flight missing-value sentinel; the
// caller converts NaN to explicit nulls before anything is persisted.
package indicators

import "math"

// Return1D computes the simple one-day return close[t]/close[t-1] - 1.
// The first element is always NaN; so is any element whose own or previous
// close is missing or whose previous close is zero.
func Return1D(closes []float64) []float64 {
	result := nanSeries(len(closes))
	for i := 1; i < len(closes); i++ {
		prev := closes[i-1]
		if math.IsNaN(closes[i]) || math.IsNaN(prev) || prev == 0 {
			continue
		}
		result[i] = closes[i]/prev - 1
	}
	return result
}

// SMA computes the arithmetic mean over a trailing window. Elements before a
// full window exists are NaN, as is any window containing a missing close.
func SMA(values []float64, period int) []float64 {
	result := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return result
	}
	var sum float64
	var missing int
	for i, v := range values {
		if math.IsNaN(v) {
			missing++
		} else {
			sum += v
		}
		if i >= period {
			old := values[i-period]
			if math.IsNaN(old) {
				missing--
			} else {
				sum -= old
			}
		}
		if i >= period-1 && missing == 0 {
			result[i] = sum / float64(period)
		}
	}
	return result
}

// EMA computes the exponential moving average with smoothing factor
// 2/(period+1), seeded at the first available value. There is no warm-up gate:
// the series is defined from the first observation onward. A missing input
// carries the previous average forward.
func EMA(values []float64, period int) []float64 {
	result := nanSeries(len(values))
	if period <= 0 || len(values) == 0 {
		return result
	}
	alpha := 2.0 / float64(period+1)
	ewm(values, alpha, result)
	return result
}

// WilderRSI computes the Relative Strength Index using Wilder's smoothing:
// average gain and loss are exponentially smoothed with alpha = 1/period,
// seeded at the first price difference. The first element is NaN, and so is
// any element where the smoothed loss is zero (the RS ratio is undefined
// rather than infinite).
func WilderRSI(closes []float64, period int) []float64 {
	result := nanSeries(len(closes))
	if period <= 0 || len(closes) < 2 {
		return result
	}

	gains := nanSeries(len(closes))
	losses := nanSeries(len(closes))
	for i := 1; i < len(closes); i++ {
		if math.IsNaN(closes[i]) || math.IsNaN(closes[i-1]) {
			continue
		}
		delta := closes[i] - closes[i-1]
		gains[i] = math.Max(delta, 0)
		losses[i] = math.Max(-delta, 0)
	}

	alpha := 1.0 / float64(period)
	avgGain := nanSeries(len(closes))
	avgLoss := nanSeries(len(closes))
	ewm(gains, alpha, avgGain)
	ewm(losses, alpha, avgLoss)

	for i := range closes {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) || avgLoss[i] == 0 {
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		result[i] = 100 - 100/(1+rs)
	}
	return result
}

// ewm writes the exponentially weighted mean of values into result, seeding at
// the first non-NaN value and carrying the running mean across missing inputs.
func ewm(values []float64, alpha float64, result []float64) {
	prev := math.NaN()
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			result[i] = prev
		case math.IsNaN(prev):
			prev = v
			result[i] = v
		default:
			prev = alpha*v + (1-alpha)*prev
			result[i] = prev
		}
	}
}

func nanSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}
