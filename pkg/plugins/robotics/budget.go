package robotics

import (
	"context"

	"github.com/pcehq/pce/pkg/pcetypes"
)

// StateLoader is the subset of pcestore.Store the budget checker needs.
type StateLoader interface {
	LoadState(ctx context.Context) (pcetypes.State, error)
}

// BudgetChecker adapts the current digital twin's budget_remaining to the
// Approval Gate's BudgetChecker interface.
type BudgetChecker struct {
	Loader StateLoader
}

func (b BudgetChecker) BudgetRemaining(ctx context.Context) (float64, error) {
	state, err := b.Loader.LoadState(ctx)
	if err != nil {
		return 0, err
	}
	return TwinFromState(state).BudgetRemaining, nil
}
