package indicators

import (
	"errors"
	"math"

	"quantb/internal/models"
)

var (
	// ErrInsufficientData means the series is shorter than the indicator's look-back.
	ErrInsufficientData = errors.New("insufficient data for calculation")
	// ErrInvalidPeriod means a look-back period or multiplier is not positive.
	ErrInvalidPeriod = errors.New("invalid period")
)

// lookback is embedded by indicators parameterized by a single period.
type lookback struct {
	n int
}

func (l lookback) Period() int {
	return l.n
}

// require checks the period and that at least need bars are present.
func (l lookback) require(bars, need int) error {
	if l.n <= 0 {
		return ErrInvalidPeriod
	}
	if bars < need {
		return ErrInsufficientData
	}
	return nil
}

// wilder is Wilder's running average. The first n inputs seed it with
// their simple mean; afterwards avg = (avg*(n-1) + x) / n.
type wilder struct {
	n     int
	count int
	sum   float64
	avg   float64
}

// push adds x and reports the average once the seed window is full.
func (w *wilder) push(x float64) (float64, bool) {
	if w.count < w.n {
		w.count++
		w.sum += x
		if w.count < w.n {
			return 0, false
		}
		w.avg = w.sum / float64(w.n)
		return w.avg, true
	}
	w.avg = (w.avg*float64(w.n-1) + x) / float64(w.n)
	return w.avg, true
}

// ema is the exponential moving average of xs seeded with the mean of the
// first period values. Entries before the seed are zero; nil when xs is
// shorter than period.
func ema(xs []float64, period int) []float64 {
	if period <= 0 || len(xs) < period {
		return nil
	}
	out := make([]float64, len(xs))
	k := 2 / float64(period+1)
	prev := avg(xs[:period])
	out[period-1] = prev
	for i, x := range xs[period:] {
		prev += k * (x - prev)
		out[period+i] = prev
	}
	return out
}

func avg(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// meanStd returns the mean and population standard deviation of xs.
func meanStd(xs []float64) (float64, float64) {
	m := avg(xs)
	if len(xs) == 0 {
		return m, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return m, math.Sqrt(ss / float64(len(xs)))
}

// trueRange is the widest of today's range and the gaps from yesterday's close.
func trueRange(cur, prev models.Candle) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

func closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}

// round2 rounds to two decimals for presentation.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
