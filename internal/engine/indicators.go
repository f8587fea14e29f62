package engine

import (
	"math"

	"papertrader-go/internal/market"
)

// Indicator periods follow the strategy's fixed parameter set; the window
// length handed to the engine just has to cover the slowest one.
const (
	emaFastPeriod  = 8
	emaMidPeriod   = 21
	emaSlowPeriod  = 50
	emaEntryPeriod = 13
	rsiPeriod      = 10
	macdFastPeriod = 8
	macdSlowPeriod = 17
	macdSigPeriod  = 9
	atrPeriod      = 10
	volMeanPeriod  = 12
)

// minHistory is the shortest window the engine will evaluate directionally.
const minHistory = emaSlowPeriod

// emaSeries computes an exponential moving average over values, seeding
// with the first element (alpha = 2/(period+1)).
func emaSeries(values []float64, period int) []float64 {
	if len(values) == 0 {
		return nil
	}
	alpha := 2.0 / float64(period+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

func lastEMA(values []float64, period int) float64 {
	s := emaSeries(values, period)
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// rsi computes a smoothed relative strength index over closes.
func rsi(closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 50
	}
	gains := make([]float64, len(closes)-1)
	losses := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i-1] = delta
		} else {
			losses[i-1] = -delta
		}
	}
	avgGain := lastEMA(gains, period)
	avgLoss := lastEMA(losses, period)
	return 100 - 100/(1+avgGain/(avgLoss+1e-10))
}

// macd returns the MACD line and its signal line at the newest sample.
func macd(closes []float64) (line, signal, prevLine float64) {
	fast := emaSeries(closes, macdFastPeriod)
	slow := emaSeries(closes, macdSlowPeriod)
	if len(fast) == 0 {
		return 0, 0, 0
	}
	series := make([]float64, len(closes))
	for i := range closes {
		series[i] = fast[i] - slow[i]
	}
	sig := emaSeries(series, macdSigPeriod)
	line = series[len(series)-1]
	signal = sig[len(sig)-1]
	if len(series) > 1 {
		prevLine = series[len(series)-2]
	} else {
		prevLine = line
	}
	return line, signal, prevLine
}

// atr averages the true range of the last period bars.
func atr(window []market.Observation, period int) float64 {
	if len(window) < 2 {
		return 0
	}
	start := len(window) - period
	if start < 1 {
		start = 1
	}
	var sum float64
	var n int
	for i := start; i < len(window); i++ {
		cur, prev := window[i], window[i-1]
		high, low := cur.High, cur.Low
		if high == 0 && low == 0 {
			high, low = cur.Price, cur.Price
		}
		tr := math.Max(high-low, math.Max(math.Abs(high-prev.Price), math.Abs(low-prev.Price)))
		sum += tr
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// volumeRatio compares the newest volume to its recent mean.
func volumeRatio(window []market.Observation, period int) float64 {
	if len(window) == 0 {
		return 0
	}
	start := len(window) - period
	if start < 0 {
		start = 0
	}
	var sum float64
	var n int
	for i := start; i < len(window); i++ {
		sum += window[i].Volume
		n++
	}
	if n == 0 {
		return 0
	}
	mean := sum / float64(n)
	return window[len(window)-1].Volume / (mean + 1e-10)
}

func closesOf(window []market.Observation) []float64 {
	out := make([]float64, len(window))
	for i, o := range window {
		out[i] = o.Price
	}
	return out
}
