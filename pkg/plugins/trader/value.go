package trader

import (
	"context"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Value scores a market.candle event's opportunity/risk/quality tuple,
// ported from trader_plugins/value_model.py:TraderValueModel.
type Value struct {
	Config Config
}

func (v Value) Value(_ context.Context, state pcetypes.State, ev *pcetypes.Event) (float64, []string, error) {
	payload := ev.PayloadMap()
	symbol, _ := payload["symbol"].(string)
	timeframe, _ := payload["timeframe"].(string)

	cfg := v.Config
	if cfg.StartingCash == 0 {
		cfg = DefaultConfig()
	}
	rs := RuntimeStateFromState(state, cfg.StartingCash)
	snap := marketSnapshotFor(rs, symbol, timeframe)

	pWin, _ := predict(snap)
	opportunity := clamp01(0.7*pWin + 0.3*maxF(0, snap.Ret6+0.5))
	volatilityPenalty := clamp01(snap.ATR / maxF(1.0, snap.LastClose))
	risk := clamp01(0.7*volatilityPenalty + 0.3*clamp01(snap.BBWidth))

	quality := 1.0
	var violations []string
	if !snap.Integrity {
		quality -= 0.7
		violations = append(violations, "integrity_bad")
	}
	if volatilityPenalty > 0.04 {
		quality -= 0.2
		violations = append(violations, "high_volatility")
	}
	quality = clamp01(quality)

	score := clamp01(0.5*opportunity + 0.2*(1-risk) + 0.3*quality)
	return score, violations, nil
}

func marketSnapshotFor(rs RuntimeState, symbol, timeframe string) MarketSnapshot {
	if bySymbol, ok := rs.Market[symbol]; ok {
		if snap, ok := bySymbol[timeframe]; ok {
			return snap
		}
	}
	return MarketSnapshot{Integrity: true}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
