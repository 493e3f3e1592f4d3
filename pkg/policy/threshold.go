package policy

import (
	"fmt"

	"github.com/ritzau/agentic-mesh/pkg/model"
)

// decideThreshold forwards along the cheapest distance-reducing link unless
// that hop is saturated or untrusted.
func decideThreshold(e *Engine, node model.Node, msg *model.Message, g Graph) (model.Decision, error) {
	cands := candidates(node, msg, g, true)
	if len(cands) == 0 {
		return noRoute(msg), nil
	}

	best := cands[0]
	next, ok := g.Node(best.id)
	if !ok {
		return model.Decision{}, fmt.Errorf("neighbor %d missing from topology", best.id)
	}
	if d, ok := e.admit(next); !ok {
		return d, nil
	}
	return model.Forward(next.ID, fmt.Sprintf("lowest-cost hop to %d (cost %.0f)", next.ID, best.cost)), nil
}
