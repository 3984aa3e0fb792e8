package trader

import "github.com/pcehq/pce/pkg/pcetypes"

// ApplyPendingUpdate applies the decision plugin's proposed mode/metrics
// update and, when present, its mock fill: cash debit, weighted-average
// position update, and day trade counters. The pipeline calls this after
// DE runs and before the candidate state is persisted, mirroring the
// rover plugin's SetEpisodePendingTransition handoff.
//
// Grounded on trader_plugins/ao.py:MockBroker.execute and the metrics
// bookkeeping half of trader_plugins/runtime.py:TraderRuntime.on_candle.
func ApplyPendingUpdate(state pcetypes.State, update PendingUpdate, startingCash float64) pcetypes.State {
	rs := RuntimeStateFromState(state, startingCash)

	rs.Metrics.Mode = update.Mode
	rs.Metrics.DecisionsTotal++
	rs.Metrics.PWinAvg = rs.Metrics.PWinAvg*0.9 + update.PWin*0.1

	if update.Fill != nil && update.Fill.Qty > 0 {
		fill := *update.Fill
		pos := rs.Portfolio.Positions[fill.Symbol]
		totalCost := fill.Price*fill.Qty + fill.Fee
		rs.Portfolio.Cash -= totalCost

		prevQty := pos.Qty
		newQty := prevQty + fill.Qty
		if newQty == 0 {
			pos.AvgPrice = 0
		} else {
			pos.AvgPrice = (pos.AvgPrice*prevQty + fill.Price*fill.Qty) / newQty
		}
		pos.Qty = newQty
		rs.Portfolio.Positions[fill.Symbol] = pos

		rs.Limits.TradesTotalDay++
		rs.Limits.TradesByAssetDay[fill.Symbol]++
		rs.Metrics.TradesExecuted++
	}

	return WithRuntimeState(state, rs)
}
