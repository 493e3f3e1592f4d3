package policy

import (
	"fmt"

	"github.com/ritzau/agentic-mesh/pkg/model"
)

// decideFlood has no admission control. It only gives up when every
// neighbor has already carried the message.
func decideFlood(_ *Engine, node model.Node, msg *model.Message, g Graph) (model.Decision, error) {
	cands := candidates(node, msg, g, false)
	if len(cands) == 0 {
		return model.Drop("all neighbors already visited"), nil
	}

	best := cands[0]
	if best.reducing {
		return model.Forward(best.id, fmt.Sprintf("flood toward %d via %d", msg.Destination, best.id)), nil
	}
	return model.Forward(best.id, fmt.Sprintf("flood detour via %d", best.id)), nil
}
