package trader

// SimpleModel is a distance-to-centroid classifier with an uncertainty
// estimate, ported from trader_plugins/adaptation.py:SimpleModel.
type SimpleModel struct {
	Version      string             `json:"version"`
	PosCentroid  map[string]float64 `json:"pos_centroid"`
	NegCentroid  map[string]float64 `json:"neg_centroid"`
	TrainScore   float64            `json:"train_score"`
}

// Predict returns (p_win, uncertainty) from feature distances to each
// centroid.
func (m SimpleModel) Predict(features map[string]float64) (float64, float64) {
	pos := distance(features, m.PosCentroid)
	neg := distance(features, m.NegCentroid)
	denom := maxF(1e-9, pos+neg)
	pWin := 1.0 - (pos / denom)
	uncertainty := clamp01(absF(0.5-pWin)*-2 + 1)
	return clamp01(pWin), uncertainty
}

func distance(a, b map[string]float64) float64 {
	var sum float64
	n := 0
	for k, av := range a {
		if bv, ok := b[k]; ok {
			sum += absF(av - bv)
			n++
		}
	}
	if n == 0 {
		return 1.0
	}
	return sum / float64(n)
}

func centroid(rows []map[string]float64) map[string]float64 {
	keys := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			keys[k] = struct{}{}
		}
	}
	out := make(map[string]float64, len(keys))
	for k := range keys {
		var sum float64
		for _, row := range rows {
			sum += row[k]
		}
		out[k] = sum / float64(len(rows))
	}
	return out
}

// predict returns (p_win, uncertainty) for the given market snapshot from
// the ema-slope heuristic baseline used before any model has trained (see
// predictWithModel for the trained-model path), ported
// from trader_plugins/runtime.py:TraderRuntime._model_predict.
func predict(snap MarketSnapshot) (float64, float64) {
	baseline := 0.55 + 0.20*clampSigned(snap.EMASlope*20, -1, 1)
	return clamp01(baseline), 0.5
}

// predictWithModel prefers an active trained model over the heuristic
// baseline.
func predictWithModel(snap MarketSnapshot, model *SimpleModel) (float64, float64) {
	if model == nil {
		return predict(snap)
	}
	return model.Predict(map[string]float64{
		"ret_1":     snap.Ret1,
		"ret_6":     snap.Ret6,
		"atr":       snap.ATR,
		"rsi":       snap.RSI,
		"ema_slope": snap.EMASlope,
		"bb_width":  snap.BBWidth,
		"adx_like":  snap.ADXLike,
	})
}

func clampSigned(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

// tripleBarrierLabels labels each close TP_FIRST/SL_FIRST/NONE by which
// barrier is touched first within the horizon, ported verbatim from
// trader_plugins/adaptation.py:triple_barrier_labels.
func tripleBarrierLabels(closes []float64, horizon int, tp, sl float64) []string {
	labels := make([]string, len(closes))
	for i := range labels {
		labels[i] = "NONE"
	}
	for idx, entry := range closes {
		if entry <= 0 {
			continue
		}
		up := entry * (1 + tp)
		down := entry * (1 - sl)
		end := idx + horizon + 1
		if end > len(closes) {
			end = len(closes)
		}
		tag := "NONE"
		for j := idx + 1; j < end; j++ {
			if closes[j] >= up {
				tag = "TP_FIRST"
				break
			}
			if closes[j] <= down {
				tag = "SL_FIRST"
				break
			}
		}
		labels[idx] = tag
	}
	return labels
}
