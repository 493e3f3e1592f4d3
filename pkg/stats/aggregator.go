// Package stats aggregates routing outcomes for one simulation instance.
//
// An Aggregator has a single writer, the simulation tick. Counters only
// ever grow; a fresh Aggregator comes with every simulation restart.
package stats

import (
	"github.com/ritzau/agentic-mesh/pkg/model"
)

// DefaultLogCapacity matches the dashboard's reasoning log window
const DefaultLogCapacity = 100

// Aggregator holds the monotonic counters and the reasoning log
type Aggregator struct {
	transmitted uint64
	dropped     uint64
	generated   uint64
	collisions  uint64
	log         *Ring[model.LogEntry]
}

// NewAggregator creates an aggregator keeping logCapacity log entries
func NewAggregator(logCapacity int) *Aggregator {
	return &Aggregator{log: NewRing[model.LogEntry](logCapacity)}
}

// Record appends one reasoning log entry
func (a *Aggregator) Record(entry model.LogEntry) {
	a.log.Push(entry)
}

// Delivered counts one message reaching its destination
func (a *Aggregator) Delivered() {
	a.transmitted++
}

// Dropped counts one message terminating as dropped
func (a *Aggregator) Dropped() {
	a.dropped++
}

// Collision counts one hop refused because the next buffer was full
func (a *Aggregator) Collision() {
	a.collisions++
}

// Generated counts n newly created messages
func (a *Aggregator) Generated(n int) {
	if n > 0 {
		a.generated += uint64(n)
	}
}

// Transmitted returns the delivered count
func (a *Aggregator) Transmitted() uint64 {
	return a.transmitted
}

// DroppedCount returns the dropped count
func (a *Aggregator) DroppedCount() uint64 {
	return a.dropped
}

// Stats returns a copy of the counters labelled with the active policy
func (a *Aggregator) Stats(policy string, inFlight int) model.Stats {
	return model.Stats{
		Transmitted: a.transmitted,
		Dropped:     a.dropped,
		Generated:   a.generated,
		Collisions:  a.collisions,
		InFlight:    inFlight,
		Policy:      policy,
	}
}

// Recent returns up to n log entries, newest first
func (a *Aggregator) Recent(n int) []model.LogEntry {
	return a.log.Recent(n)
}

// LogLen returns how many entries the log currently holds
func (a *Aggregator) LogLen() int {
	return a.log.Len()
}
