package pubsub

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/agentic-mesh/pkg/logging"
	"github.com/ritzau/agentic-mesh/pkg/model"
)

func snap(tick uint64) *model.Snapshot {
	return &model.Snapshot{Type: model.SnapshotType, Tick: tick, Policy: "Flood"}
}

func receive(t *testing.T, sub Subscription) *model.Snapshot {
	t.Helper()
	select {
	case s, ok := <-sub.Events():
		if !ok {
			t.Fatal("Subscription closed unexpectedly")
		}
		return s
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for snapshot")
	}
	return nil
}

func expectNothing(t *testing.T, sub Subscription) {
	t.Helper()
	select {
	case s, ok := <-sub.Events():
		if ok {
			t.Errorf("Received unexpected snapshot tick %d", s.Tick)
		}
	case <-time.After(30 * time.Millisecond):
		// Good, queue is empty
	}
}

func TestReplayLatestOnSubscribe(t *testing.T) {
	hub := NewHub(DefaultQueueDepth)
	defer hub.Close()

	for i := uint64(1); i <= 3; i++ {
		hub.Publish(snap(i))
	}

	sub, err := hub.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	if got := receive(t, sub).Tick; got != 3 {
		t.Errorf("Expected tick 3, got %d", got)
	}
	expectNothing(t, sub)
}

func TestRetainUpdatesReplayWithoutPushing(t *testing.T) {
	hub := NewHub(DefaultQueueDepth)
	defer hub.Close()

	hub.Publish(snap(3))
	early, err := hub.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer early.Close()
	if got := receive(t, early).Tick; got != 3 {
		t.Errorf("Expected tick 3, got %d", got)
	}

	hub.Retain(snap(4))
	hub.Retain(snap(5))
	expectNothing(t, early)

	late, err := hub.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer late.Close()
	if got := receive(t, late).Tick; got != 5 {
		t.Errorf("Expected the current tick 5 on connect, got %d", got)
	}

	hub.Publish(snap(6))
	if got := receive(t, early).Tick; got != 6 {
		t.Errorf("Expected tick 6, got %d", got)
	}
	if got := receive(t, late).Tick; got != 6 {
		t.Errorf("Expected tick 6, got %d", got)
	}
	if got := hub.Latest().Tick; got != 6 {
		t.Errorf("Expected latest tick 6, got %d", got)
	}
}

func TestNoReplayBeforeFirstPublish(t *testing.T) {
	hub := NewHub(DefaultQueueDepth)
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	expectNothing(t, sub)

	hub.Publish(snap(7))
	if got := receive(t, sub).Tick; got != 7 {
		t.Errorf("Expected tick 7, got %d", got)
	}
}

func TestSlowObserverKeepsLatestInOrder(t *testing.T) {
	for _, depth := range []int{1, 2} {
		hub := NewHub(depth)

		sub, err := hub.Subscribe(context.Background())
		if err != nil {
			t.Fatalf("Failed to subscribe: %v", err)
		}

		for i := uint64(1); i <= 10; i++ {
			hub.Publish(snap(i))
		}

		var got []uint64
		for i := 0; i < depth; i++ {
			got = append(got, receive(t, sub).Tick)
		}
		expectNothing(t, sub)

		if got[len(got)-1] != 10 {
			t.Errorf("depth %d: expected newest tick 10 last, got %v", depth, got)
		}
		for i := 1; i < len(got); i++ {
			if got[i] <= got[i-1] {
				t.Errorf("depth %d: ticks not strictly increasing: %v", depth, got)
			}
		}
		if want := uint64(10 - depth); hub.Skipped() != want {
			t.Errorf("depth %d: expected %d skipped, got %d", depth, want, hub.Skipped())
		}
		hub.Close()
	}
}

func TestQueueDepthIsClamped(t *testing.T) {
	if got := NewHub(0).depth; got != MinQueueDepth {
		t.Errorf("Expected depth %d, got %d", MinQueueDepth, got)
	}
	if got := NewHub(50).depth; got != MaxQueueDepth {
		t.Errorf("Expected depth %d, got %d", MaxQueueDepth, got)
	}
}

func TestPublishDoesNotBlockOnAbandonedObserver(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()

	if _, err := hub.Subscribe(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		for i := uint64(0); i < 1000; i++ {
			hub.Publish(snap(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a non-reading observer")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(DefaultQueueDepth)
	defer hub.Close()

	sub, err := hub.Subscribe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if hub.Len() != 1 {
		t.Fatalf("Expected 1 subscription, got %d", hub.Len())
	}

	for i := 0; i < 3; i++ {
		if err := sub.Close(); err != nil {
			t.Errorf("Close %d returned %v", i, err)
		}
	}
	if hub.Len() != 0 {
		t.Errorf("Expected 0 subscriptions, got %d", hub.Len())
	}
	if _, ok := <-sub.Events(); ok {
		t.Error("Expected events channel to be closed")
	}

	// Publishing after unsubscribe must not panic
	hub.Publish(snap(1))
}

func TestContextCancelClosesSubscription(t *testing.T) {
	hub := NewHub(DefaultQueueDepth)
	defer hub.Close()

	ctx, cancel := context.WithCancel(logging.WithObserverID(context.Background(), "observer-1"))
	sub, err := hub.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if sub.ID() != "observer-1" {
		t.Errorf("Expected observer id from context, got %q", sub.ID())
	}

	cancel()

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("Expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("Subscription not closed after cancel")
	}
	if hub.Len() != 0 {
		t.Errorf("Expected 0 subscriptions, got %d", hub.Len())
	}
}

func TestClosedHub(t *testing.T) {
	hub := NewHub(DefaultQueueDepth)
	sub, err := hub.Subscribe(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	hub.Close()
	hub.Close()

	if _, ok := <-sub.Events(); ok {
		t.Error("Expected subscription closed with hub")
	}
	sub.Close()

	if _, err := hub.Subscribe(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	hub.Publish(snap(1))
}

func TestWriteSSE(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSSE(&buf, snap(12)); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "data: {\"type\":\"state_update\"") {
		t.Errorf("Unexpected framing: %q", out)
	}
	if !strings.HasSuffix(out, "}\n\n") {
		t.Errorf("Expected blank line terminator: %q", out)
	}
	if !strings.Contains(out, `"tick":12`) {
		t.Errorf("Expected tick in payload: %q", out)
	}
}
