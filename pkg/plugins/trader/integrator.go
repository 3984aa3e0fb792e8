package trader

import (
	"github.com/pcehq/pce/pkg/pcetypes"
)

// Integrator ingests market.candle events into the per-symbol/timeframe
// rolling indicator window and marks the account's drawdown against the
// latest close. It never decides or executes a trade: that is the decision
// plugin's job, since ISI runs before DE has proposed a plan.
//
// Grounded on trader_plugins/isi.py:TraderISI and the mark-to-market half
// of trader_plugins/runtime.py:TraderRuntime._update_risk_state.
type Integrator struct {
	Config Config
}

func (in Integrator) Integrate(state pcetypes.State, ev *pcetypes.Event) pcetypes.State {
	if ev.EventType != "market.candle" {
		return state
	}
	payload := ev.PayloadMap()
	symbol, _ := payload["symbol"].(string)
	timeframe, _ := payload["timeframe"].(string)
	if symbol == "" || timeframe == "" {
		return state
	}

	cfg := in.Config
	if cfg.StartingCash == 0 {
		cfg = DefaultConfig()
	}
	rs := RuntimeStateFromState(state, cfg.StartingCash)

	open, _ := asFloat(payload["open"])
	high, _ := asFloat(payload["high"])
	low, _ := asFloat(payload["low"])
	close, _ := asFloat(payload["close"])
	volume, _ := asFloat(payload["volume"])
	integrityOK := true
	if v, ok := payload["integrity_ok"].(bool); ok {
		integrityOK = v
	}

	bySymbol, ok := rs.Market[symbol]
	if !ok {
		bySymbol = map[string]MarketSnapshot{}
	}
	bySymbol[timeframe] = appendCandle(bySymbol[timeframe], open, high, low, close, volume, integrityOK)
	rs.Market[symbol] = bySymbol

	if timeframe == cfg.ExecutionTimeframe {
		rs = markToMarket(rs, close)
	}

	return WithRuntimeState(state, rs)
}

// markToMarket recomputes equity and day/month drawdown from current
// positions at the latest execution-timeframe close, ported from
// trader_plugins/runtime.py:TraderRuntime._update_risk_state.
func markToMarket(rs RuntimeState, markPrice float64) RuntimeState {
	var mtm float64
	for _, pos := range rs.Portfolio.Positions {
		mtm += pos.Qty * markPrice
	}
	equity := rs.Portfolio.Cash + mtm
	rs.Portfolio.Equity = equity

	dayStart := rs.Limits.DayStartEquity
	if dayStart == 0 {
		dayStart = equity
	}
	monthStart := rs.Limits.MonthStartEquity
	if monthStart == 0 {
		monthStart = equity
	}
	rs.DDDay = nonNegative((dayStart - equity) / maxF(dayStart, 1e-9))
	rs.DDMonth = nonNegative((monthStart - equity) / maxF(monthStart, 1e-9))
	return rs
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

func nonNegative(f float64) float64 {
	if f < 0 {
		return 0
	}
	return f
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
