package model

// Node represents a mesh router in the simulated topology.
// Position only feeds link quality when the topology is built; routing
// reads edge costs, never coordinates.
type Node struct {
	ID       int     `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Capacity int     `json:"capacity"`   // Max in-flight messages resident at the node
	Load     int     `json:"load"`       // In-flight messages currently resident
	Trust    float64 `json:"trustScore"` // 0.0 (untrusted) .. 1.0 (fully trusted)
}

// LoadRatio returns load relative to capacity, 1.0 meaning saturated.
func (n Node) LoadRatio() float64 {
	if n.Capacity <= 0 {
		return 1.0
	}
	return float64(n.Load) / float64(n.Capacity)
}

// Saturated reports whether accepting one more message would exceed capacity.
func (n Node) Saturated() bool {
	return n.Load >= n.Capacity
}

// Edge represents an undirected link between two nodes.
type Edge struct {
	A    int     `json:"a"`
	B    int     `json:"b"`
	Cost float64 `json:"cost"` // Link latency/weight, always positive
	RSSI float64 `json:"rssi"` // dBm at the receiver
	SNR  float64 `json:"snr"`  // dB
}

// TopologyView is the static part of the mesh, served to dashboards once.
type TopologyView struct {
	Nodes    []Node `json:"nodes"`
	Edges    []Edge `json:"edges"`
	Diameter int    `json:"diameter"`
}
