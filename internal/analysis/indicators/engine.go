// Package indicators provides technical indicator strategies and an engine
// that evaluates them concurrently over a candle series.
package indicators

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc"

	"quantb/internal/models"
)

// Indicator defines the interface for single-value technical indicators.
type Indicator interface {
	Name() string
	Calculate(candles []models.Candle) ([]float64, error)
	Period() int
}

// MultiValueIndicator defines the interface for indicators that return multiple values.
type MultiValueIndicator interface {
	Name() string
	Calculate(candles []models.Candle) (map[string][]float64, error)
	Period() int
}

// Results holds the output of one engine run keyed by indicator name.
// Indicators that lacked data are absent.
type Results struct {
	Single map[string][]float64
	Multi  map[string]map[string][]float64
}

// Engine evaluates registered indicators concurrently.
type Engine struct {
	mu          sync.RWMutex
	indicators  map[string]Indicator
	multiIndics map[string]MultiValueIndicator
}

// NewEngine creates an empty indicator engine.
func NewEngine() *Engine {
	return &Engine{
		indicators:  make(map[string]Indicator),
		multiIndics: make(map[string]MultiValueIndicator),
	}
}

// Standard RSI, MACD, Bollinger and moving-average periods.
const (
	RSIPeriod       = 14
	MACDFast        = 12
	MACDSlow        = 26
	MACDSignal      = 9
	BollingerPeriod = 20
	BollingerStdDev = 2.0
	ATRPeriod       = 14
)

// NewDefaultEngine registers the indicators used by technical analysis.
func NewDefaultEngine() *Engine {
	e := NewEngine()
	e.RegisterIndicator(NewRSI(RSIPeriod))
	e.RegisterIndicator(NewSMA(20))
	e.RegisterIndicator(NewSMA(50))
	e.RegisterIndicator(NewEMA(20))
	e.RegisterIndicator(NewATR(ATRPeriod))
	e.RegisterMultiIndicator(NewMACD(MACDFast, MACDSlow, MACDSignal))
	e.RegisterMultiIndicator(NewBollingerBands(BollingerPeriod, BollingerStdDev))
	return e
}

// RegisterIndicator registers a single-value indicator.
func (e *Engine) RegisterIndicator(ind Indicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.indicators[ind.Name()] = ind
}

// RegisterMultiIndicator registers a multi-value indicator.
func (e *Engine) RegisterMultiIndicator(ind MultiValueIndicator) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.multiIndics[ind.Name()] = ind
}

// CalculateAll evaluates every registered indicator concurrently.
func (e *Engine) CalculateAll(ctx context.Context, candles []models.Candle) (*Results, error) {
	e.mu.RLock()
	indicators := make([]Indicator, 0, len(e.indicators))
	for _, ind := range e.indicators {
		indicators = append(indicators, ind)
	}
	multiIndics := make([]MultiValueIndicator, 0, len(e.multiIndics))
	for _, ind := range e.multiIndics {
		multiIndics = append(multiIndics, ind)
	}
	e.mu.RUnlock()

	res := &Results{
		Single: make(map[string][]float64),
		Multi:  make(map[string]map[string][]float64),
	}
	var mu sync.Mutex
	var wg conc.WaitGroup

	for _, ind := range indicators {
		wg.Go(func() {
			if ctx.Err() != nil {
				return
			}
			values, err := ind.Calculate(candles)
			if err != nil {
				return
			}
			mu.Lock()
			res.Single[ind.Name()] = values
			mu.Unlock()
		})
	}
	for _, ind := range multiIndics {
		wg.Go(func() {
			if ctx.Err() != nil {
				return
			}
			values, err := ind.Calculate(candles)
			if err != nil {
				return
			}
			mu.Lock()
			res.Multi[ind.Name()] = values
			mu.Unlock()
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// Latest returns the last value of a series.
func Latest(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}
