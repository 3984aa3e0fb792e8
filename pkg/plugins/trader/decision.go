package trader

import (
	"context"

	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

// Decision applies the MACRO→MODEL→GUARDRAILS gate chain in fixed order
// and sizes the trade from the account's risk-per-trade budget.
//
// Grounded on trader_plugins/decision.py:TraderDecisionEngine and the
// position-sizing half of trader_plugins/runtime.py:TraderRuntime
// (_size_from_risk).
type Decision struct {
	Config  Config
	Storage *Storage
}

func (d Decision) Decide(ctx context.Context, in plugins.DecisionInput) (pcetypes.ActionPlan, error) {
	cfg := d.Config
	if cfg.StartingCash == 0 {
		cfg = DefaultConfig()
	}
	payload := in.Event.PayloadMap()
	symbol, _ := payload["symbol"].(string)

	rs := RuntimeStateFromState(in.State, cfg.StartingCash)
	snap := marketSnapshotFor(rs, symbol, cfg.ExecutionTimeframe)
	macroSnap := marketSnapshotFor(rs, symbol, cfg.MacroTimeframe)
	macroRegime := macroSnap.Regime
	if macroRegime == "" {
		macroRegime = "sideways"
	}

	var model *SimpleModel
	if d.Storage != nil && rs.ActiveModel != "" {
		model, _ = d.Storage.LoadModel(ctx, rs.ActiveModel)
	}
	pWin, uncertainty := predictWithModel(snap, model)
	threshold := cfg.PWinThreshold

	gateResults := make([]map[string]any, 0, 3)

	macroPass := macroRegime != "bear" && macroRegime != "invalid"
	gateResults = append(gateResults, map[string]any{"gate": "macro_4h", "passed": macroPass, "value": macroRegime})

	modelPass := pWin >= threshold && uncertainty <= 0.45
	gateResults = append(gateResults, map[string]any{
		"gate": "model", "passed": modelPass,
		"value": map[string]any{"p_win": pWin, "uncertainty": uncertainty, "threshold": threshold},
	})

	lockEntries := !snap.Integrity
	guardrailsPass := !lockEntries &&
		rs.Limits.TradesTotalDay < cfg.Risk.MaxTradesPerDay &&
		rs.Limits.TradesByAssetDay[symbol] < cfg.Risk.MaxTradesPerAssetDay &&
		rs.DDDay < cfg.Risk.DailyDrawdownLimit &&
		rs.DDMonth < cfg.Risk.MonthlyDrawdownLimit &&
		rs.Metrics.Mode != "locked"
	gateResults = append(gateResults, map[string]any{"gate": "guardrails", "passed": guardrailsPass})

	allowTrade := macroPass && modelPass && guardrailsPass
	qty := 0.0
	if allowTrade {
		qty = sizeFromRisk(snap.ATR, snap.LastClose, rs.Portfolio.Equity, cfg.Risk.RiskPerTrade)
	}
	action := "trader.no_trade"
	if allowTrade && qty > 0 {
		action = "trader.buy"
	}

	plan := pcetypes.ActionPlan{
		ActionType:     action,
		Priority:       3,
		Rationale:      gateReason(gateResults),
		ExpectedImpact: in.ValueScore,
		Domain:         Name,
		Metadata: map[string]any{
			"symbol": symbol,
			"qty":    qty,
			"mode":   rs.Metrics.Mode,
		},
	}

	de := plan.Explain("de")
	de["gate_results"] = gateResults
	de["p_win"] = pWin
	de["uncertainty"] = uncertainty
	de["threshold"] = threshold
	de["macro_regime"] = macroRegime

	nextMode := ModeFromCCIF(in.CCI, lockEntries)
	de["mode"] = nextMode

	update := PendingUpdate{Mode: nextMode, PWin: pWin}
	if action == "trader.buy" {
		update.Fill = &PendingFill{
			Symbol: symbol,
			Side:   "BUY",
			Qty:    qty,
			Price:  execPrice(snap.LastClose, cfg.SlippageBps),
			Fee:    fillFee(snap.LastClose, qty, cfg.SlippageBps, cfg.FeeBps),
		}
	}
	de["pending_update"] = update

	return plan, nil
}

// sizeFromRisk converts the account's per-trade risk budget into a
// quantity, ported from trader_plugins/runtime.py:_size_from_risk.
func sizeFromRisk(atr, price, equity, riskPerTrade float64) float64 {
	riskBudget := equity * riskPerTrade
	stopDistance := maxF(atr, price*0.005)
	if stopDistance <= 0 {
		return 0
	}
	qty := riskBudget / stopDistance
	if qty < 0 {
		return 0
	}
	return qty
}

func execPrice(markPrice, slippageBps float64) float64 {
	return markPrice * (1.0 + slippageBps/10_000.0)
}

func fillFee(markPrice, qty, slippageBps, feeBps float64) float64 {
	exec := execPrice(markPrice, slippageBps)
	gross := exec * qty
	return gross * (feeBps / 10_000.0)
}

func gateReason(results []map[string]any) string {
	reason := ""
	for i, r := range results {
		if i > 0 {
			reason += "; "
		}
		status := "FAIL"
		if passed, _ := r["passed"].(bool); passed {
			status = "PASS"
		}
		name, _ := r["gate"].(string)
		reason += name + "=" + status
	}
	return reason
}
