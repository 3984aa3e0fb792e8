package trader

import "math"

// maxCandleHistory bounds the rolling window kept per symbol/timeframe, far
// above the 20-period indicators below need so ATR/RSI/BB stay stable.
const maxCandleHistory = 240

// appendCandle pushes one OHLC candle into the bounded rolling window and
// returns the indicator set, ported from trader_plugins/isi.py.
func appendCandle(prev MarketSnapshot, open, high, low, close, volume float64, integrityOK bool) MarketSnapshot {
	_ = open
	_ = volume
	closes := append(append([]float64{}, prev.Closes...), close)
	highs := append(append([]float64{}, prev.Highs...), high)
	lows := append(append([]float64{}, prev.Lows...), low)
	if len(closes) > maxCandleHistory {
		closes = closes[len(closes)-maxCandleHistory:]
		highs = highs[len(highs)-maxCandleHistory:]
		lows = lows[len(lows)-maxCandleHistory:]
	}

	snap := MarketSnapshot{
		Closes:    closes,
		Highs:     highs,
		Lows:      lows,
		LastClose: close,
		Ret1:      safeRet(closes, 1),
		Ret6:      safeRet(closes, 6),
		ATR:       atr(highs, lows, closes, 14),
		RSI:       rsi(closes, 14),
		EMASlope:  emaSlope(closes, 12),
		BBWidth:   bbWidth(closes, 20),
		Integrity: integrityOK,
	}
	snap.ADXLike = adxLike(highs, lows, closes, 14, snap.ATR)
	snap.Regime = regime(snap)
	return snap
}

func safeRet(closes []float64, lookback int) float64 {
	if len(closes) <= lookback {
		return 0
	}
	prev := closes[len(closes)-lookback-1]
	if prev == 0 {
		return 0
	}
	return closes[len(closes)-1]/prev - 1.0
}

func atr(highs, lows, closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 0
	}
	start := len(closes) - period
	if start < 1 {
		start = 1
	}
	var sum float64
	n := 0
	for i := start; i < len(closes); i++ {
		tr := maxOf3(
			highs[i]-lows[i],
			absF(highs[i]-closes[i-1]),
			absF(lows[i]-closes[i-1]),
		)
		sum += tr
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func rsi(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50
	}
	var gains, losses float64
	n := 0
	for i := len(closes) - period; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			gains += diff
		} else {
			losses += -diff
		}
		n++
	}
	avgGain := gains / float64(n)
	avgLoss := losses / float64(n)
	if avgLoss <= 0 {
		avgLoss = 1e-9
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

func emaSlope(closes []float64, period int) float64 {
	if len(closes) == 0 {
		return 0
	}
	alpha := 2.0 / (float64(period) + 1.0)
	ema := closes[0]
	history := make([]float64, 0, len(closes))
	for _, v := range closes {
		ema = alpha*v + (1-alpha)*ema
		history = append(history, ema)
	}
	if len(history) < 4 {
		return 0
	}
	base := history[len(history)-4]
	if base == 0 {
		return 0
	}
	return (history[len(history)-1] - base) / base
}

func bbWidth(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}
	window := closes[len(closes)-period:]
	mid := meanOf(window)
	var variance float64
	for _, v := range window {
		variance += (v - mid) * (v - mid)
	}
	variance /= float64(len(window))
	stdev := math.Sqrt(variance)
	if mid == 0 {
		return 0
	}
	return (4 * stdev) / mid
}

func adxLike(highs, lows, closes []float64, period int, atrValue float64) float64 {
	if len(closes) < period+1 || atrValue == 0 {
		return 0
	}
	var sum float64
	n := 0
	for i := len(closes) - period; i < len(closes); i++ {
		sum += absF(closes[i] - closes[i-1])
		n++
	}
	avg := sum / float64(n)
	v := 10.0 * avg / atrValue
	if v > 100 {
		return 100
	}
	return v
}

func regime(snap MarketSnapshot) string {
	if !snap.Integrity {
		return "invalid"
	}
	if snap.EMASlope > 0 && snap.ADXLike >= 15 {
		return "bull"
	}
	if snap.EMASlope < 0 && snap.ADXLike >= 15 {
		return "bear"
	}
	return "sideways"
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func maxOf3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

func absF(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
