package policy

import (
	"fmt"
	"strings"

	"github.com/ritzau/agentic-mesh/pkg/model"
)

// Congestion levels derived from a next hop's load ratio
const (
	CongestionLow    = "LOW"
	CongestionMedium = "MEDIUM"
	CongestionHigh   = "HIGH"
)

// CongestionOf buckets a node's load ratio
func CongestionOf(n model.Node) string {
	r := n.LoadRatio()
	switch {
	case r >= 0.8:
		return CongestionHigh
	case r >= 0.5:
		return CongestionMedium
	default:
		return CongestionLow
	}
}

// payloadClass groups payloads the way triage treats them
func payloadClass(payload string) string {
	if model.PriorityOf(payload) == model.PriorityCritical {
		return "critical"
	}
	if strings.Contains(payload, "Telemetry") || strings.Contains(payload, "Ping") {
		return "telemetry"
	}
	return "other"
}

// triage is the semantic verdict for a payload class under a congestion level
func triage(class, congestion string) model.Action {
	switch class {
	case "critical":
		return model.ActionForward
	case "telemetry":
		if congestion == CongestionLow {
			return model.ActionForward
		}
		return model.ActionDrop
	default:
		return model.ActionForward
	}
}

func (e *Engine) cachedTriage(class, congestion string) model.Action {
	key := class + "::" + congestion

	e.mu.Lock()
	defer e.mu.Unlock()
	if v, ok := e.cache[key]; ok {
		return v
	}
	v := triage(class, congestion)
	e.cache[key] = v
	return v
}

// decideAgentic sheds routine traffic when the next hop is busy and always
// tries to push critical traffic through.
func decideAgentic(e *Engine, node model.Node, msg *model.Message, g Graph) (model.Decision, error) {
	cands := candidates(node, msg, g, true)
	if len(cands) == 0 {
		return noRoute(msg), nil
	}

	next, ok := g.Node(cands[0].id)
	if !ok {
		return model.Decision{}, fmt.Errorf("neighbor %d missing from topology", cands[0].id)
	}

	class := payloadClass(msg.Payload)
	level := CongestionOf(next)

	if next.Trust < e.cfg.TrustThreshold {
		return model.Reject(next.ID, e.trustReason(next)), nil
	}
	if e.cachedTriage(class, level) == model.ActionDrop {
		return model.Drop(fmt.Sprintf("%s shed under %s congestion at node %d", class, level, next.ID)), nil
	}
	if next.Saturated() {
		return model.Overflow(next.ID, loadReason(next)), nil
	}
	return model.Forward(next.ID, fmt.Sprintf("%s traffic, %s congestion at node %d", class, level, next.ID)), nil
}
