package indicators

import (
	"fmt"
	"math"

	"quantb/internal/models"
)

// RSI is the Relative Strength Index over Wilder-smoothed gains and losses.
type RSI struct {
	lookback
}

// NewRSI creates an RSI over period bars.
func NewRSI(period int) *RSI {
	return &RSI{lookback{period}}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI_%d", r.n)
}

// Calculate returns one value per candle; values before index Period are zero.
func (r *RSI) Calculate(candles []models.Candle) ([]float64, error) {
	if err := r.require(len(candles), r.n+1); err != nil {
		return nil, err
	}

	cs := closes(candles)
	out := make([]float64, len(cs))
	gains, losses := wilder{n: r.n}, wilder{n: r.n}
	for i := 1; i < len(cs); i++ {
		move := cs[i] - cs[i-1]
		g, ready := gains.push(math.Max(move, 0))
		l, _ := losses.push(math.Max(-move, 0))
		if ready {
			out[i] = strength(g, l)
		}
	}
	return out, nil
}

// strength maps average gain and loss onto [0, 100]. A series that never
// moves reads 50.
func strength(gain, loss float64) float64 {
	switch {
	case loss == 0 && gain == 0:
		return 50
	case loss == 0:
		return 100
	}
	return 100 - 100/(1+gain/loss)
}
