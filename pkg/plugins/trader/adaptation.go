package trader

import (
	"context"
	"fmt"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// Adaptation trains a new SimpleModel from labeled historical rows on
// feedback.trader.retrain events, and records drift flags on
// feedback.trader.drift_check events, promoting a model to active when
// its walk-forward validation score clears 0.55.
//
// Grounded on trader_plugins/adaptation.py:TraderAFS.
type Adaptation struct {
	Config  Config
	Storage *Storage
}

const minTrainingSamples = 20

func (a Adaptation) Adapt(ctx context.Context, state pcetypes.State, ev *pcetypes.Event) (pcetypes.State, error) {
	cfg := a.Config
	if cfg.StartingCash == 0 {
		cfg = DefaultConfig()
	}
	switch ev.EventType {
	case "feedback.trader.retrain":
		return a.retrain(ctx, state, ev, cfg)
	case "feedback.trader.drift_check":
		return a.driftCheck(state, ev, cfg)
	default:
		return state, nil
	}
}

func (a Adaptation) retrain(ctx context.Context, state pcetypes.State, ev *pcetypes.Event, cfg Config) (pcetypes.State, error) {
	payload := ev.PayloadMap()
	closes := floatSlice(payload["closes"])
	rows := featureRows(payload["rows"])
	if len(rows) != len(closes) {
		return state, nil
	}
	horizon := 6
	labels := tripleBarrierLabels(closes, horizon, 0.015, 0.01)

	var usableRows []map[string]float64
	var usableLabels []string
	for i, label := range labels {
		if label == "TP_FIRST" || label == "SL_FIRST" {
			usableRows = append(usableRows, rows[i])
			usableLabels = append(usableLabels, label)
		}
	}
	if len(usableRows) < minTrainingSamples {
		return state, nil
	}

	split := len(usableRows) * 7 / 10
	if split < 10 {
		split = 10
	}
	if split > len(usableRows) {
		split = len(usableRows)
	}
	trainRows, trainLabels := usableRows[:split], usableLabels[:split]
	valRows, valLabels := usableRows[split:], usableLabels[split:]

	var pos, neg []map[string]float64
	for i, label := range trainLabels {
		if label == "TP_FIRST" {
			pos = append(pos, trainRows[i])
		} else {
			neg = append(neg, trainRows[i])
		}
	}
	if len(pos) == 0 || len(neg) == 0 {
		return state, nil
	}

	version := fmt.Sprintf("model-%d", ev.TS)
	model := SimpleModel{Version: version, PosCentroid: centroid(pos), NegCentroid: centroid(neg)}
	model.TrainScore = validate(model, valRows, valLabels)

	status := "candidate"
	if model.TrainScore >= 0.55 {
		status = "approved"
	}

	if a.Storage != nil {
		if err := a.Storage.SaveModel(ctx, model); err != nil {
			return state, fmt.Errorf("trader adaptation: save model: %w", err)
		}
		if err := a.Storage.AppendRegistry(ctx, ModelRegistryEntry{
			Version:    version,
			TrainScore: model.TrainScore,
			Status:     status,
		}); err != nil {
			return state, fmt.Errorf("trader adaptation: append registry: %w", err)
		}
	}

	rs := RuntimeStateFromState(state, cfg.StartingCash)
	if status == "approved" {
		rs.ActiveModel = version
	}
	return WithRuntimeState(state, rs), nil
}

func (a Adaptation) driftCheck(state pcetypes.State, ev *pcetypes.Event, cfg Config) (pcetypes.State, error) {
	payload := ev.PayloadMap()
	outcomes := floatSlice(payload["recent_outcomes"])
	baseline, _ := asFloat(payload["baseline"])
	if len(outcomes) == 0 {
		return state, nil
	}
	current := meanOf(outcomes)
	drift := baseline - current

	rs := RuntimeStateFromState(state, cfg.StartingCash)
	if drift > 0.12 {
		rs.Metrics.DriftFlags = append(rs.Metrics.DriftFlags, fmt.Sprintf("drift=%.4f at %d", drift, ev.TS))
		if len(rs.Metrics.DriftFlags) > 20 {
			rs.Metrics.DriftFlags = rs.Metrics.DriftFlags[len(rs.Metrics.DriftFlags)-20:]
		}
	}
	return WithRuntimeState(state, rs), nil
}

func validate(model SimpleModel, rows []map[string]float64, labels []string) float64 {
	if len(rows) == 0 {
		return 0.5
	}
	hits := 0
	for i, features := range rows {
		pWin, _ := model.Predict(features)
		pred := "SL_FIRST"
		if pWin >= 0.5 {
			pred = "TP_FIRST"
		}
		if pred == labels[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(rows))
}

func floatSlice(v any) []float64 {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(arr))
	for _, item := range arr {
		if f, ok := asFloat(item); ok {
			out = append(out, f)
		}
	}
	return out
}

func featureRows(v any) []map[string]float64 {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]float64, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		row := make(map[string]float64, len(m))
		for k, raw := range m {
			if f, ok := asFloat(raw); ok {
				row[k] = f
			}
		}
		out = append(out, row)
	}
	return out
}
