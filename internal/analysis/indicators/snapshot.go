package indicators

import (
	"context"

	"quantb/internal/models"
)

// MACDValue is the latest MACD reading.
type MACDValue struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// BandsValue is the latest Bollinger Bands reading.
type BandsValue struct {
	Upper    float64 `json:"upper"`
	Middle   float64 `json:"middle"`
	Lower    float64 `json:"lower"`
	PercentB float64 `json:"percentB"`
}

// Values are the latest indicator readings. Nil fields lacked enough history.
type Values struct {
	RSI       *float64    `json:"rsi,omitempty"`
	MACD      *MACDValue  `json:"macd,omitempty"`
	Bollinger *BandsValue `json:"bollingerBands,omitempty"`
	SMA20     *float64    `json:"sma20,omitempty"`
	SMA50     *float64    `json:"sma50,omitempty"`
	EMA20     *float64    `json:"ema20,omitempty"`
	ATR       *float64    `json:"atr,omitempty"`
}

// Snapshot is the technical-analysis payload for one symbol.
type Snapshot struct {
	Symbol     string   `json:"symbol"`
	LastClose  float64  `json:"lastClose"`
	Bars       int      `json:"bars"`
	Indicators Values   `json:"indicators"`
	Trend      string   `json:"trend"` // bullish, bearish or neutral
	Signals    []string `json:"signals"`
}

// Analyze runs the engine over candles and summarizes the latest readings.
func (e *Engine) Analyze(ctx context.Context, symbol string, candles []models.Candle) (*Snapshot, error) {
	if len(candles) < RSIPeriod+1 {
		return nil, ErrInsufficientData
	}

	res, err := e.CalculateAll(ctx, candles)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Symbol:    symbol,
		LastClose: candles[len(candles)-1].Close,
		Bars:      len(candles),
		Signals:   []string{},
	}

	latest := func(name string) *float64 {
		v, ok := Latest(res.Single[name])
		if !ok {
			return nil
		}
		v = round2(v)
		return &v
	}

	snap.Indicators.RSI = latest(NewRSI(RSIPeriod).Name())
	snap.Indicators.SMA20 = latest(NewSMA(20).Name())
	snap.Indicators.SMA50 = latest(NewSMA(50).Name())
	snap.Indicators.EMA20 = latest(NewEMA(20).Name())
	snap.Indicators.ATR = latest(NewATR(ATRPeriod).Name())

	if m, ok := res.Multi[NewMACD(MACDFast, MACDSlow, MACDSignal).Name()]; ok {
		macd, _ := Latest(m["macd"])
		signal, _ := Latest(m["signal"])
		hist, _ := Latest(m["histogram"])
		snap.Indicators.MACD = &MACDValue{Value: round2(macd), Signal: round2(signal), Histogram: round2(hist)}
	}
	if b, ok := res.Multi[NewBollingerBands(BollingerPeriod, BollingerStdDev).Name()]; ok {
		upper, _ := Latest(b["upper"])
		middle, _ := Latest(b["middle"])
		lower, _ := Latest(b["lower"])
		pb, _ := Latest(b["percent_b"])
		snap.Indicators.Bollinger = &BandsValue{Upper: round2(upper), Middle: round2(middle), Lower: round2(lower), PercentB: round2(pb)}
	}

	snap.Trend, snap.Signals = interpret(snap)
	return snap, nil
}

// interpret turns readings into a coarse trend and human-readable signals.
func interpret(s *Snapshot) (string, []string) {
	score := 0
	signals := []string{}
	ind := s.Indicators

	if ind.RSI != nil {
		switch {
		case *ind.RSI >= 70:
			signals = append(signals, "RSI overbought")
			score--
		case *ind.RSI <= 30:
			signals = append(signals, "RSI oversold")
			score++
		}
	}
	if ind.MACD != nil {
		if ind.MACD.Histogram > 0 {
			signals = append(signals, "MACD above signal line")
			score++
		} else if ind.MACD.Histogram < 0 {
			signals = append(signals, "MACD below signal line")
			score--
		}
	}
	if ind.SMA20 != nil && ind.SMA50 != nil {
		if *ind.SMA20 > *ind.SMA50 {
			signals = append(signals, "SMA20 above SMA50")
			score++
		} else if *ind.SMA20 < *ind.SMA50 {
			signals = append(signals, "SMA20 below SMA50")
			score--
		}
	}
	if ind.Bollinger != nil {
		if s.LastClose > ind.Bollinger.Upper {
			signals = append(signals, "Price above upper Bollinger Band")
		} else if s.LastClose < ind.Bollinger.Lower {
			signals = append(signals, "Price below lower Bollinger Band")
		}
	}

	switch {
	case score >= 2:
		return "bullish", signals
	case score <= -2:
		return "bearish", signals
	default:
		return "neutral", signals
	}
}
