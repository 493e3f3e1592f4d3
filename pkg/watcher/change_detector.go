package watcher

import (
	"github.com/fsnotify/fsnotify"
)

// ChangeType classifies a file system event on a watched file
type ChangeType int

const (
	ChangeTypeModified ChangeType = iota // Written or (re)created
	ChangeTypeRemoved                    // Removed or renamed away
)

func (c ChangeType) String() string {
	switch c {
	case ChangeTypeModified:
		return "modified"
	case ChangeTypeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Classify maps an fsnotify operation to a ChangeType.
// Chmod-only events are ignored.
func Classify(op fsnotify.Op) (ChangeType, bool) {
	switch {
	case op.Has(fsnotify.Write), op.Has(fsnotify.Create):
		return ChangeTypeModified, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return ChangeTypeRemoved, true
	default:
		return 0, false
	}
}

// NeedsRestart reports whether a debounced batch should rebuild the simulation.
// Editors that save by rename produce Removed followed by Modified; only the
// final state of each file matters.
func NeedsRestart(batch ChangeEvent) bool {
	for _, t := range batch.Latest {
		if t == ChangeTypeModified {
			return true
		}
	}
	return false
}
