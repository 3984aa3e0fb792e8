package rover

import "context"

const namespace = "rover"

// KV is the subset of pcestore used by rover storage.
type KV interface {
	PluginGetJSON(ctx context.Context, namespace, key string, dst any) (bool, error)
	PluginSetJSON(ctx context.Context, namespace, key string, v any) error
	PluginDeletePrefix(ctx context.Context, namespace, prefix string) (int, error)
}

// Storage is namespace-scoped persistence for the rover's Q-table and
// hyperparameters.
type Storage struct {
	kv KV
}

func NewStorage(kv KV) *Storage { return &Storage{kv: kv} }

// Params loads persisted hyperparameters, seeding defaults on first use.
func (s *Storage) Params(ctx context.Context) (Hyperparams, error) {
	var p Hyperparams
	ok, err := s.kv.PluginGetJSON(ctx, namespace, "params", &p)
	if err != nil {
		return Hyperparams{}, err
	}
	if !ok {
		p = DefaultHyperparams()
		if err := s.kv.PluginSetJSON(ctx, namespace, "params", p); err != nil {
			return Hyperparams{}, err
		}
	}
	return p, nil
}

// SetEpsilon persists a decayed epsilon value, leaving the rest of the
// hyperparameters untouched.
func (s *Storage) SetEpsilon(ctx context.Context, epsilon float64) error {
	p, err := s.Params(ctx)
	if err != nil {
		return err
	}
	p.Epsilon = epsilon
	return s.kv.PluginSetJSON(ctx, namespace, "params", p)
}

// ResetParams restores the default hyperparameters, used by the
// clear_policy and reset_stats control endpoints.
func (s *Storage) ResetParams(ctx context.Context) error {
	return s.kv.PluginSetJSON(ctx, namespace, "params", DefaultHyperparams())
}

// Q loads the Q-values for one state key, defaulting every action to 0.
func (s *Storage) Q(ctx context.Context, stateKey string) (map[string]float64, error) {
	var stored map[string]float64
	ok, err := s.kv.PluginGetJSON(ctx, namespace, "q:"+stateKey, &stored)
	if err != nil {
		return nil, err
	}
	q := make(map[string]float64, len(RobotActions))
	for _, a := range RobotActions {
		if ok {
			q[a] = stored[a]
		} else {
			q[a] = 0
		}
	}
	return q, nil
}

// SetQValue persists one state-action pair while retaining the others.
func (s *Storage) SetQValue(ctx context.Context, stateKey, action string, value float64) error {
	q, err := s.Q(ctx, stateKey)
	if err != nil {
		return err
	}
	q[action] = value
	return s.kv.PluginSetJSON(ctx, namespace, "q:"+stateKey, q)
}

// ClearPolicy resets every persisted Q-value and restores default
// hyperparameters.
func (s *Storage) ClearPolicy(ctx context.Context) error {
	if _, err := s.kv.PluginDeletePrefix(ctx, namespace, "q:"); err != nil {
		return err
	}
	return s.ResetParams(ctx)
}
