package watcher

import (
	"context"
	"time"

	"github.com/ritzau/agentic-mesh/pkg/logging"
)

// Debouncer batches rapid file system events so one save triggers one restart
type Debouncer struct {
	input       <-chan ChangeEvent
	output      chan ChangeEvent
	quietPeriod time.Duration
	maxWait     time.Duration
}

// NewDebouncer creates a new event debouncer
func NewDebouncer(input <-chan ChangeEvent, quietPeriod, maxWait time.Duration) *Debouncer {
	return &Debouncer{
		input:       input,
		output:      make(chan ChangeEvent, 10),
		quietPeriod: quietPeriod,
		maxWait:     maxWait,
	}
}

// Start begins processing events with debouncing
func (d *Debouncer) Start(ctx context.Context) {
	go d.run(ctx)
}

// run merges events until the input is quiet for quietPeriod, or maxWait
// has passed since the first unflushed event
func (d *Debouncer) run(ctx context.Context) {
	var (
		quiet   *time.Timer
		maxWait *time.Timer
		pending = ChangeEvent{Latest: make(map[string]ChangeType)}
		count   int
	)

	timerC := func(t *time.Timer) <-chan time.Time {
		if t == nil {
			return nil
		}
		return t.C
	}

	flush := func() {
		if quiet != nil {
			quiet.Stop()
			quiet = nil
		}
		if maxWait != nil {
			maxWait.Stop()
			maxWait = nil
		}
		if count == 0 {
			return
		}

		logging.Debug("flushing accumulated events", "count", count, "files", len(pending.Latest))
		pending.Timestamp = time.Now()
		select {
		case d.output <- pending:
		case <-ctx.Done():
		}
		pending = ChangeEvent{Latest: make(map[string]ChangeType)}
		count = 0
	}

	defer close(d.output)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-d.input:
			if !ok {
				flush()
				return
			}

			for path, t := range event.Latest {
				pending.Latest[path] = t
			}
			count++

			if quiet == nil {
				quiet = time.NewTimer(d.quietPeriod)
			} else {
				quiet.Reset(d.quietPeriod)
			}
			if maxWait == nil {
				maxWait = time.NewTimer(d.maxWait)
			}

		case <-timerC(quiet):
			quiet = nil
			flush()

		case <-timerC(maxWait):
			maxWait = nil
			flush()
		}
	}
}

// Output returns the channel of debounced events
func (d *Debouncer) Output() <-chan ChangeEvent {
	return d.output
}
