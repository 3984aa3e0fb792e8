// Package trader is the "trader" domain plugin: a MACRO→MODEL→GUARDRAILS
// gate chain over ingested market candles, with a mock fee/slippage fill
// simulator and a walk-forward model registry fed by feedback events.
//
// Grounded on
// original_source/agents/trader/src/trader_plugins/{runtime,isi,decision,
// ao,value_model,adaptation,storage,config}.py.
package trader

import (
	"github.com/pcehq/pce/pkg/pcetypes"
)

// Name is the domain dispatch key for this plugin.
const Name = "trader"

// StateKey is the top-level state key the runtime state is persisted
// under, per spec's reserved-key list ("trader": strategy state).
const StateKey = "trader"

// Position is one open position in a symbol.
type Position struct {
	Qty      float64 `json:"qty"`
	AvgPrice float64 `json:"avg_price"`
}

// Portfolio is the simulated trading account.
type Portfolio struct {
	Cash           float64             `json:"cash"`
	Equity         float64             `json:"equity"`
	Positions      map[string]Position `json:"positions"`
	RealizedPnL    float64             `json:"realized_pnl"`
	UnrealizedPnL  float64             `json:"unrealized_pnl"`
}

// Limits tracks the guardrail counters the gate chain checks.
type Limits struct {
	TradesTotalDay     int            `json:"trades_total_day"`
	TradesByAssetDay   map[string]int `json:"trades_by_asset_day"`
	DayStartEquity     float64        `json:"day_start_equity"`
	MonthStartEquity   float64        `json:"month_start_equity"`
}

// MarketSnapshot is the rolling indicator state for one symbol/timeframe.
type MarketSnapshot struct {
	Closes    []float64 `json:"closes"`
	Highs     []float64 `json:"highs"`
	Lows      []float64 `json:"lows"`
	LastClose float64   `json:"last_close"`
	Ret1      float64   `json:"ret_1"`
	Ret6      float64   `json:"ret_6"`
	ATR       float64   `json:"atr"`
	RSI       float64   `json:"rsi"`
	EMASlope  float64   `json:"ema_slope"`
	BBWidth   float64   `json:"bb_width"`
	ADXLike   float64   `json:"adx_like"`
	Regime    string    `json:"regime"`
	Integrity bool      `json:"integrity_ok"`
}

// Metrics are the runtime's headline counters.
type Metrics struct {
	DecisionsTotal int      `json:"decisions_total"`
	TradesExecuted int      `json:"trades_executed"`
	CCIF           float64  `json:"cci_f"`
	PWinAvg        float64  `json:"p_win_avg"`
	Mode           string   `json:"mode"`
	DriftFlags     []string `json:"drift_flags,omitempty"`
}

// RuntimeState is the full persisted trader strategy document, at
// state["trader"].
type RuntimeState struct {
	Portfolio Portfolio                         `json:"portfolio"`
	Limits    Limits                            `json:"limits"`
	Market    map[string]map[string]MarketSnapshot `json:"market"`
	Metrics   Metrics                           `json:"metrics"`
	DDDay     float64                           `json:"dd_day"`
	DDMonth   float64                           `json:"dd_month"`
	ActiveModel string                          `json:"active_model,omitempty"`
}

// DefaultRuntimeState mirrors TraderStorage.load_runtime_state's seed
// values for a fresh account.
func DefaultRuntimeState(startingCash float64) RuntimeState {
	return RuntimeState{
		Portfolio: Portfolio{
			Cash:      startingCash,
			Equity:    startingCash,
			Positions: map[string]Position{},
		},
		Limits: Limits{
			TradesByAssetDay: map[string]int{},
			DayStartEquity:   startingCash,
			MonthStartEquity: startingCash,
		},
		Market:  map[string]map[string]MarketSnapshot{},
		Metrics: Metrics{CCIF: 0.8, Mode: "cautious"},
	}
}

// RuntimeStateFromState loads the trader runtime document, defaulting to a
// fresh account when absent or malformed.
func RuntimeStateFromState(state pcetypes.State, startingCash float64) RuntimeState {
	var rs RuntimeState
	if !state.Get(StateKey, &rs) {
		return DefaultRuntimeState(startingCash)
	}
	if rs.Portfolio.Positions == nil {
		rs.Portfolio.Positions = map[string]Position{}
	}
	if rs.Limits.TradesByAssetDay == nil {
		rs.Limits.TradesByAssetDay = map[string]int{}
	}
	if rs.Market == nil {
		rs.Market = map[string]map[string]MarketSnapshot{}
	}
	return rs
}

// WithRuntimeState writes the runtime document back to state["trader"].
func WithRuntimeState(state pcetypes.State, rs RuntimeState) pcetypes.State {
	next := state.Clone()
	next.Set(StateKey, rs)
	return next
}

// PendingFill is the fill the decision plugin proposes but cannot apply
// itself; the pipeline applies it via ApplyPendingUpdate after DE runs,
// mirroring the rover plugin's pending_transition handoff.
type PendingFill struct {
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"`
	Qty    float64 `json:"qty"`
	Price  float64 `json:"price"`
	Fee    float64 `json:"fee"`
}

// PendingUpdate bundles every state mutation the decision plugin proposes
// for one market.candle decision but cannot apply itself (DecisionPlugin
// is a pure function of state). The pipeline reads this from
// plan.Explain("de")["pending_update"] and applies it via
// ApplyPendingUpdate before persisting the candidate state.
type PendingUpdate struct {
	Mode string       `json:"mode"`
	PWin float64      `json:"p_win"`
	Fill *PendingFill `json:"fill,omitempty"`
}
