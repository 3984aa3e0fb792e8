package assistant

import (
	"github.com/pcehq/pce/pkg/llm"
	"github.com/pcehq/pce/pkg/pcestore"
	"github.com/pcehq/pce/pkg/plugins"
)

// New bundles the assistant domain's capabilities into a plugins.Domain for
// registration with the Plugin Registry.
func New(store *pcestore.Store, llmClient *llm.Client, valueFloor, cciFloor float64) plugins.Domain {
	storage := NewStorage(store)
	return plugins.Domain{
		Name:  Name,
		Value: Value{},
		Decision: Decision{
			Storage:    storage,
			LLM:        llmClient,
			ValueFloor: valueFloor,
			CCIFloor:   cciFloor,
		},
		Adaptation: Adaptation{Storage: storage},
	}
}
