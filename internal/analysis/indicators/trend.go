package indicators

import (
	"fmt"

	"quantb/internal/models"
)

// SMA is the simple moving average of closes.
type SMA struct {
	lookback
}

// NewSMA creates an SMA over period bars.
func NewSMA(period int) *SMA {
	return &SMA{lookback{period}}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA_%d", s.n)
}

func (s *SMA) Calculate(candles []models.Candle) ([]float64, error) {
	if err := s.require(len(candles), s.n); err != nil {
		return nil, err
	}
	cs := closes(candles)
	out := make([]float64, len(cs))
	for end := s.n; end <= len(cs); end++ {
		out[end-1] = avg(cs[end-s.n : end])
	}
	return out, nil
}

// EMA is the exponential moving average of closes.
type EMA struct {
	lookback
}

// NewEMA creates an EMA over period bars.
func NewEMA(period int) *EMA {
	return &EMA{lookback{period}}
}

func (e *EMA) Name() string {
	return fmt.Sprintf("EMA_%d", e.n)
}

func (e *EMA) Calculate(candles []models.Candle) ([]float64, error) {
	if err := e.require(len(candles), e.n); err != nil {
		return nil, err
	}
	return ema(closes(candles), e.n), nil
}

// MACD is the fast/slow EMA spread with its signal line and histogram.
type MACD struct {
	fast, slow, signal int
}

// NewMACD creates a MACD. The conventional periods are 12, 26 and 9.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{fast: fast, slow: slow, signal: signal}
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fast, m.slow, m.signal)
}

// Period is the number of bars before the histogram has its first value.
func (m *MACD) Period() int {
	return m.slow + m.signal - 1
}

func (m *MACD) Calculate(candles []models.Candle) (map[string][]float64, error) {
	if m.fast <= 0 || m.signal <= 0 || m.fast >= m.slow {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < m.Period() {
		return nil, ErrInsufficientData
	}

	cs := closes(candles)
	n := len(cs)
	fast, slow := ema(cs, m.fast), ema(cs, m.slow)
	first := m.slow - 1

	line := make([]float64, n)
	for i := first; i < n; i++ {
		line[i] = fast[i] - slow[i]
	}
	signal := make([]float64, n)
	copy(signal[first:], ema(line[first:], m.signal))

	hist := make([]float64, n)
	for i := m.Period() - 1; i < n; i++ {
		hist[i] = line[i] - signal[i]
	}

	return map[string][]float64{
		"macd":      line,
		"signal":    signal,
		"histogram": hist,
	}, nil
}
