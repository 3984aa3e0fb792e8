package trader

import "github.com/pcehq/pce/pkg/plugins"

// New builds the trader domain's plugin bundle around the given config and
// namespaced plugin KV store.
func New(kv KV, cfg Config) plugins.Domain {
	storage := NewStorage(kv)
	return plugins.Domain{
		Name:       Name,
		Integrator: Integrator{Config: cfg},
		Value:      Value{Config: cfg},
		Decision:   Decision{Config: cfg, Storage: storage},
		Adaptation: Adaptation{Config: cfg, Storage: storage},
	}
}
