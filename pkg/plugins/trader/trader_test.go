package trader

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pcehq/pce/pkg/pcetypes"
	"github.com/pcehq/pce/pkg/plugins"
)

func candleEvent(symbol, timeframe string, o, h, l, c, v float64) *pcetypes.Event {
	payload, _ := json.Marshal(map[string]any{
		"domain": "trader", "symbol": symbol, "timeframe": timeframe,
		"open": o, "high": h, "low": l, "close": c, "volume": v, "integrity_ok": true,
	})
	return &pcetypes.Event{EventType: "market.candle", Payload: payload}
}

func TestIntegratorBuildsIndicatorsAndMarksDrawdown(t *testing.T) {
	state := pcetypes.State{}
	in := Integrator{Config: DefaultConfig()}
	for i := 0; i < 25; i++ {
		price := 100.0 + float64(i)
		ev := candleEvent("BTCUSDT", "1h", price, price+1, price-1, price, 10)
		state = in.Integrate(state, ev)
	}
	rs := RuntimeStateFromState(state, DefaultConfig().StartingCash)
	snap := rs.Market["BTCUSDT"]["1h"]
	if len(snap.Closes) == 0 {
		t.Fatal("expected closes to be recorded")
	}
	if snap.ATR <= 0 {
		t.Errorf("ATR = %v, want positive for a moving series", snap.ATR)
	}
	if rs.Portfolio.Equity != rs.Portfolio.Cash {
		t.Errorf("Equity = %v, want equal to cash with no open positions", rs.Portfolio.Equity)
	}
}

func TestIntegratorIgnoresNonCandleEvents(t *testing.T) {
	in := Integrator{Config: DefaultConfig()}
	state := pcetypes.State{}.Set("unrelated", "value")
	next := in.Integrate(state, &pcetypes.Event{EventType: "feedback.trader.retrain", Payload: []byte(`{}`)})
	var v string
	if !next.Get("unrelated", &v) || v != "value" {
		t.Error("expected state to pass through unchanged for non-candle events")
	}
}

func TestDecisionBuysWhenAllGatesPass(t *testing.T) {
	cfg := DefaultConfig()
	state := pcetypes.State{}
	in := Integrator{Config: cfg}
	for i := 0; i < 20; i++ {
		price := 100.0 + float64(i)
		state = in.Integrate(state, candleEvent("BTCUSDT", "1h", price, price+1, price-1, price, 10))
		state = in.Integrate(state, candleEvent("BTCUSDT", "4h", price, price+1, price-1, price, 10))
	}

	// The heuristic fallback predictor always reports uncertainty=0.5,
	// above the model gate's 0.45 ceiling, so a trade only clears the
	// model gate once a trained model is active: seed one whose centroid
	// exactly matches this snapshot's features for a confident, certain
	// p_win.
	rs := RuntimeStateFromState(state, cfg.StartingCash)
	snap := rs.Market["BTCUSDT"]["1h"]
	features := map[string]float64{
		"ret_1": snap.Ret1, "ret_6": snap.Ret6, "atr": snap.ATR,
		"rsi": snap.RSI, "ema_slope": snap.EMASlope, "bb_width": snap.BBWidth, "adx_like": snap.ADXLike,
	}
	farAway := map[string]float64{}
	for k, v := range features {
		farAway[k] = v + 1000
	}
	model := SimpleModel{Version: "m-test", PosCentroid: features, NegCentroid: farAway}
	storage := NewStorage(newFakeKV())
	if err := storage.SaveModel(context.Background(), model); err != nil {
		t.Fatalf("SaveModel: %v", err)
	}
	rs.ActiveModel = model.Version
	state = WithRuntimeState(state, rs)

	d := Decision{Config: cfg, Storage: storage}
	ev := candleEvent("BTCUSDT", "1h", 120, 121, 119, 120, 10)
	plan, err := d.Decide(context.Background(), plugins.DecisionInput{
		Event: ev, State: state, ValueScore: 0.8, CCI: 0.9,
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	de := plan.Explain("de")
	gateResults, ok := de["gate_results"].([]map[string]any)
	if !ok || len(gateResults) != 3 {
		t.Fatalf("gate_results = %v, want 3 entries", de["gate_results"])
	}
	update, ok := de["pending_update"].(PendingUpdate)
	if !ok {
		t.Fatalf("pending_update = %v, want PendingUpdate", de["pending_update"])
	}
	if plan.ActionType != "trader.buy" {
		t.Fatalf("ActionType = %q, want trader.buy with all gates passing", plan.ActionType)
	}
	if update.Fill == nil || update.Fill.Qty <= 0 {
		t.Errorf("expected a positive-qty fill for a buy decision, got %+v", update.Fill)
	}
}

func TestDecisionBlocksOnBearMacroRegime(t *testing.T) {
	cfg := DefaultConfig()
	state := pcetypes.State{}
	in := Integrator{Config: cfg}
	for i := 0; i < 20; i++ {
		price := 100.0 + float64(i)
		state = in.Integrate(state, candleEvent("BTCUSDT", "1h", price, price+1, price-1, price, 10))
	}
	// Force the macro (4h) regime to bear directly rather than relying on
	// the indicator math to cross the adx_like threshold from synthetic
	// data: the macro_4h gate only reads the persisted regime string.
	rs := RuntimeStateFromState(state, cfg.StartingCash)
	rs.Market["BTCUSDT"]["4h"] = MarketSnapshot{Regime: "bear", Integrity: true, LastClose: 100}
	state = WithRuntimeState(state, rs)

	d := Decision{Config: cfg}
	ev := candleEvent("BTCUSDT", "1h", 120, 121, 119, 120, 10)
	plan, err := d.Decide(context.Background(), plugins.DecisionInput{
		Event: ev, State: state, ValueScore: 0.8, CCI: 0.9,
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if plan.ActionType != "trader.no_trade" {
		t.Errorf("ActionType = %q, want trader.no_trade under a bear macro regime", plan.ActionType)
	}
}

func TestDecisionBlocksWhenDailyTradeLimitReached(t *testing.T) {
	cfg := DefaultConfig()
	state := pcetypes.State{}
	in := Integrator{Config: cfg}
	for i := 0; i < 20; i++ {
		price := 100.0 + float64(i)
		state = in.Integrate(state, candleEvent("BTCUSDT", "1h", price, price+1, price-1, price, 10))
		state = in.Integrate(state, candleEvent("BTCUSDT", "4h", price, price+1, price-1, price, 10))
	}
	rs := RuntimeStateFromState(state, cfg.StartingCash)
	rs.Limits.TradesTotalDay = cfg.Risk.MaxTradesPerDay
	state = WithRuntimeState(state, rs)

	d := Decision{Config: cfg}
	ev := candleEvent("BTCUSDT", "1h", 120, 121, 119, 120, 10)
	plan, err := d.Decide(context.Background(), plugins.DecisionInput{
		Event: ev, State: state, ValueScore: 0.8, CCI: 0.9,
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if plan.ActionType != "trader.no_trade" {
		t.Errorf("ActionType = %q, want trader.no_trade once the daily trade limit is reached", plan.ActionType)
	}
}

func TestApplyPendingUpdateDebitsCashAndUpdatesPosition(t *testing.T) {
	cfg := DefaultConfig()
	state := WithRuntimeState(pcetypes.State{}, DefaultRuntimeState(cfg.StartingCash))
	update := PendingUpdate{
		Mode: "normal",
		PWin: 0.7,
		Fill: &PendingFill{Symbol: "BTCUSDT", Side: "BUY", Qty: 1, Price: 100, Fee: 1},
	}
	next := ApplyPendingUpdate(state, update, cfg.StartingCash)
	rs := RuntimeStateFromState(next, cfg.StartingCash)
	if rs.Portfolio.Cash != cfg.StartingCash-101 {
		t.Errorf("Cash = %v, want %v", rs.Portfolio.Cash, cfg.StartingCash-101)
	}
	if rs.Portfolio.Positions["BTCUSDT"].Qty != 1 {
		t.Errorf("Qty = %v, want 1", rs.Portfolio.Positions["BTCUSDT"].Qty)
	}
	if rs.Limits.TradesTotalDay != 1 {
		t.Errorf("TradesTotalDay = %d, want 1", rs.Limits.TradesTotalDay)
	}
	if rs.Metrics.Mode != "normal" {
		t.Errorf("Mode = %q, want normal", rs.Metrics.Mode)
	}
}

func TestAdaptationTrainsAndPromotesModel(t *testing.T) {
	kv := newFakeKV()
	storage := NewStorage(kv)
	a := Adaptation{Config: DefaultConfig(), Storage: storage}

	closes := make([]float64, 0, 40)
	rows := make([]any, 0, 40)
	price := 100.0
	for i := 0; i < 40; i++ {
		if i%2 == 0 {
			price += 3
		} else {
			price -= 2
		}
		closes = append(closes, price)
		rows = append(rows, map[string]any{
			"ret_1": float64(i % 2), "ema_slope": float64(i % 2),
		})
	}
	payload, _ := json.Marshal(map[string]any{"closes": closes, "rows": rows})
	ev := &pcetypes.Event{EventType: "feedback.trader.retrain", Payload: payload, TS: 1}

	next, err := a.Adapt(context.Background(), pcetypes.State{}, ev)
	if err != nil {
		t.Fatalf("Adapt: %v", err)
	}
	rs := RuntimeStateFromState(next, DefaultConfig().StartingCash)
	registry, err := storage.Registry(context.Background())
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	if len(registry) != 1 {
		t.Fatalf("registry entries = %d, want 1", len(registry))
	}
	if rs.ActiveModel != "model-1" {
		t.Errorf("ActiveModel = %q, want model-1", rs.ActiveModel)
	}
}

type fakeKV struct {
	data map[string]json.RawMessage
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]json.RawMessage{}} }

func (f *fakeKV) key(namespace, key string) string { return namespace + "\x00" + key }

func (f *fakeKV) PluginGetJSON(_ context.Context, namespace, key string, dst any) (bool, error) {
	raw, ok := f.data[f.key(namespace, key)]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (f *fakeKV) PluginSetJSON(_ context.Context, namespace, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.data[f.key(namespace, key)] = raw
	return nil
}

func (f *fakeKV) PluginDeletePrefix(_ context.Context, namespace, prefix string) (int, error) {
	n := 0
	for k := range f.data {
		if len(k) >= len(namespace)+1 && k[:len(namespace)+1] == namespace+"\x00" {
			_ = prefix
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}
