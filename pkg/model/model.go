package model

import (
	"slices"
	"strings"
	"time"
)

// Action is the outcome of a single policy evaluation
type Action string

const (
	ActionForward Action = "FORWARD"
	ActionDrop    Action = "DROP"
)

// MessageStatus is the lifecycle state of a message.
// in-flight -> delivered | dropped, both terminal.
type MessageStatus string

const (
	StatusInFlight  MessageStatus = "in-flight"
	StatusDelivered MessageStatus = "delivered"
	StatusDropped   MessageStatus = "dropped"
)

// Priority classifies a payload the way the semantic policy sees it
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityRoutine  Priority = "routine"
)

// Message is a unit of synthetic traffic routed hop by hop through the mesh
type Message struct {
	ID          string        `json:"id"`
	Source      int           `json:"source"`
	Destination int           `json:"destination"`
	Current     int           `json:"current"`
	Path        []int         `json:"path"` // Visited node ids, starting with Source
	TTL         int           `json:"ttl"`  // Remaining hops
	Hops        int           `json:"hops"`
	Payload     string        `json:"payload"`
	Priority    Priority      `json:"priority"`
	Status      MessageStatus `json:"status"`
	CreatedTick uint64        `json:"createdTick"`
}

// Visited reports whether the message has already passed through node id
func (m *Message) Visited(id int) bool {
	return slices.Contains(m.Path, id)
}

// Terminal reports whether the message reached delivered or dropped
func (m *Message) Terminal() bool {
	return m.Status == StatusDelivered || m.Status == StatusDropped
}

// Decision is the result of a policy evaluation at one node for one message.
// NextHop is only meaningful for ActionForward.
type Decision struct {
	Action   Action `json:"action"`
	NextHop  int    `json:"nextHop"`
	Reason   string `json:"reason"`
	Rejected int    `json:"rejected"` // Candidate refused by admission control, -1 if none
	Overflow bool   `json:"overflow"` // Rejected because its buffer is full
}

// Forward builds a FORWARD decision
func Forward(next int, reason string) Decision {
	return Decision{Action: ActionForward, NextHop: next, Reason: reason, Rejected: -1}
}

// Drop builds a DROP decision
func Drop(reason string) Decision {
	return Decision{Action: ActionDrop, NextHop: -1, Reason: reason, Rejected: -1}
}

// Reject builds a DROP decision that names the refused next hop
func Reject(node int, reason string) Decision {
	return Decision{Action: ActionDrop, NextHop: -1, Reason: reason, Rejected: node}
}

// Overflow is Reject for a next hop whose buffer is full
func Overflow(node int, reason string) Decision {
	d := Reject(node, reason)
	d.Overflow = true
	return d
}

// LogEntry is one line of the reasoning log rendered by dashboards
type LogEntry struct {
	Timestamp  time.Time `json:"timestamp"`
	Tick       uint64    `json:"tick"`
	NodeID     int       `json:"nodeId"`
	MessageID  string    `json:"messageId"`
	Payload    string    `json:"payload"`
	Congestion string    `json:"congestion"` // LOW, MEDIUM or HIGH at NodeID when deciding
	Action     Action    `json:"action"`
	Reason     string    `json:"reason"`
}

// Stats holds the aggregated counters of one simulation instance
type Stats struct {
	Transmitted uint64 `json:"transmitted"` // Messages delivered
	Dropped     uint64 `json:"dropped"`
	Generated   uint64 `json:"generated"`
	Collisions  uint64 `json:"collisions"` // Hops refused by a full buffer
	InFlight    int    `json:"inFlight"`
	Policy      string `json:"policy"`
}

// SnapshotType is the envelope type of every pushed snapshot
const SnapshotType = "state_update"

// Snapshot is an immutable point-in-time view pushed to observers.
// Logs are ordered most-recent-first.
type Snapshot struct {
	Type   string     `json:"type"`
	Tick   uint64     `json:"tick"`
	Nodes  []Node     `json:"nodes"`
	Stats  Stats      `json:"stats"`
	Policy string     `json:"policy"`
	Logs   []LogEntry `json:"logs"`
}

var criticalMarkers = []string{"SOS", "CRITICAL", "URGENT"}

// PriorityOf classifies a payload by its leading markers
func PriorityOf(payload string) Priority {
	for _, m := range criticalMarkers {
		if strings.Contains(payload, m) {
			return PriorityCritical
		}
	}
	return PriorityRoutine
}
