package indicators

import (
	"fmt"

	"quantb/internal/models"
)

// ATR is the Wilder-smoothed average true range.
type ATR struct {
	lookback
}

// NewATR creates an ATR over period bars.
func NewATR(period int) *ATR {
	return &ATR{lookback{period}}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.n)
}

// Calculate treats the first bar's high-low range as its true range.
func (a *ATR) Calculate(candles []models.Candle) ([]float64, error) {
	if err := a.require(len(candles), a.n+1); err != nil {
		return nil, err
	}

	out := make([]float64, len(candles))
	w := wilder{n: a.n}
	for i, c := range candles {
		tr := c.High - c.Low
		if i > 0 {
			tr = trueRange(c, candles[i-1])
		}
		if v, ok := w.push(tr); ok {
			out[i] = v
		}
	}
	return out, nil
}

// BollingerBands are mult standard deviations either side of an SMA.
type BollingerBands struct {
	lookback
	mult float64
}

// NewBollingerBands creates bands over period bars.
func NewBollingerBands(period int, mult float64) *BollingerBands {
	return &BollingerBands{lookback: lookback{period}, mult: mult}
}

func (b *BollingerBands) Name() string {
	return fmt.Sprintf("BollingerBands_%d_%.1f", b.n, b.mult)
}

// Calculate returns middle, upper and lower bands plus percent_b, the close's
// position between the bands (0 at lower, 1 at upper).
func (b *BollingerBands) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if b.mult <= 0 {
		return nil, ErrInvalidPeriod
	}
	if err := b.require(len(candles), b.n); err != nil {
		return nil, err
	}

	cs := closes(candles)
	n := len(cs)
	bands := map[string][]float64{
		"middle":    make([]float64, n),
		"upper":     make([]float64, n),
		"lower":     make([]float64, n),
		"percent_b": make([]float64, n),
	}
	for end := b.n; end <= n; end++ {
		i := end - 1
		mid, sd := meanStd(cs[end-b.n : end])
		lo, hi := mid-b.mult*sd, mid+b.mult*sd
		bands["middle"][i], bands["upper"][i], bands["lower"][i] = mid, hi, lo
		if hi > lo {
			bands["percent_b"][i] = (cs[i] - lo) / (hi - lo)
		}
	}
	return bands, nil
}
