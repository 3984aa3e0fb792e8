package rover

import (
	"github.com/pcehq/pce/pkg/pcestore"
	"github.com/pcehq/pce/pkg/plugins"
)

// New builds the rover domain's plugin bundle.
func New(store *pcestore.Store) plugins.Domain {
	storage := NewStorage(store)
	return plugins.Domain{
		Name:       Name,
		Integrator: Integrator{},
		Value:      Value{},
		Decision:   Decision{Storage: storage},
		Adaptation: Adaptation{Storage: storage},
	}
}
