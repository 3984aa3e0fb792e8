package cci

import (
	"context"
	"sort"
)

// ContradictionBreakdown counts violation tags across the current window,
// supplementing the raw contradiction_rate scalar with enough detail for an
// operator to see which value is being violated most often.
type ContradictionBreakdown struct {
	WindowSize int            `json:"window_size"`
	ByTag      map[string]int `json:"by_tag"`
	TopTags    []string       `json:"top_tags"`
}

// Contradictions aggregates violation tags across the same window CCI
// reads, mirroring the manager-level contradiction report kept alongside
// the scalar coherence score.
func (e *Engine) Contradictions(ctx context.Context) (ContradictionBreakdown, error) {
	actions, err := e.actions.RecentActions(ctx, Window)
	if err != nil {
		return ContradictionBreakdown{}, err
	}

	counts := map[string]int{}
	for _, a := range actions {
		for _, tag := range a.Violations {
			counts[tag]++
		}
	}

	tags := make([]string, 0, len(counts))
	for t := range counts {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return counts[tags[i]] > counts[tags[j]] })
	if len(tags) > 5 {
		tags = tags[:5]
	}

	return ContradictionBreakdown{
		WindowSize: len(actions),
		ByTag:      counts,
		TopTags:    tags,
	}, nil
}
