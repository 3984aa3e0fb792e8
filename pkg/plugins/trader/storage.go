package trader

import "context"

const namespace = "trader"

// KV is the subset of pcestore used by trader storage.
type KV interface {
	PluginGetJSON(ctx context.Context, namespace, key string, dst any) (bool, error)
	PluginSetJSON(ctx context.Context, namespace, key string, v any) error
	PluginDeletePrefix(ctx context.Context, namespace, prefix string) (int, error)
}

// Storage is namespace-scoped persistence for the trader's trained model
// registry, grounded on trader_plugins/storage.py:TraderStorage's
// model_registry half (runtime state itself lives in the shared state
// snapshot, not plugin_kv, per spec's reserved "trader" state key).
type Storage struct {
	kv KV
}

func NewStorage(kv KV) *Storage { return &Storage{kv: kv} }

// ModelRegistryEntry is one trained model's registry row.
type ModelRegistryEntry struct {
	Version    string  `json:"version"`
	TrainScore float64 `json:"train_score"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
}

func (s *Storage) Registry(ctx context.Context) ([]ModelRegistryEntry, error) {
	var entries []ModelRegistryEntry
	ok, err := s.kv.PluginGetJSON(ctx, namespace, "model_registry", &entries)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []ModelRegistryEntry{}, nil
	}
	return entries, nil
}

func (s *Storage) AppendRegistry(ctx context.Context, entry ModelRegistryEntry) error {
	entries, err := s.Registry(ctx)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	return s.kv.PluginSetJSON(ctx, namespace, "model_registry", entries)
}

func (s *Storage) SaveModel(ctx context.Context, model SimpleModel) error {
	return s.kv.PluginSetJSON(ctx, namespace, "model:"+model.Version, model)
}

func (s *Storage) LoadModel(ctx context.Context, version string) (*SimpleModel, error) {
	var model SimpleModel
	ok, err := s.kv.PluginGetJSON(ctx, namespace, "model:"+version, &model)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &model, nil
}
