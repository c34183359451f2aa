package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospitalos/hms/internal/lifecycle"
)

type recordingListener struct {
	mu     sync.Mutex
	events []lifecycle.Event
	err    error
}

func (l *recordingListener) Name() string { return "recording" }

func (l *recordingListener) Handle(_ context.Context, evt lifecycle.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, evt)
	return l.err
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBus_DeliversToAllListeners(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(zerolog.Nop(), 8)
	l1 := &recordingListener{}
	l2 := &recordingListener{}
	bus.Subscribe(l1)
	bus.Subscribe(l2)
	bus.Start(ctx)

	bus.Publish(lifecycle.Event{
		EntityType: "Encounter",
		EntityID:   uuid.New(),
		FromStatus: "PLANNED",
		ToStatus:   "ARRIVED",
		Timestamp:  time.Now(),
	})

	waitFor(t, func() bool { return l1.count() == 1 && l2.count() == 1 })
}

func TestBus_ListenerErrorDoesNotStopDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(zerolog.Nop(), 8)
	failing := &recordingListener{err: errors.New("broker down")}
	healthy := &recordingListener{}
	bus.Subscribe(failing)
	bus.Subscribe(healthy)
	bus.Start(ctx)

	for i := 0; i < 3; i++ {
		bus.Publish(lifecycle.Event{EntityType: "Invoice", EntityID: uuid.New(), ToStatus: "PAID"})
	}

	waitFor(t, func() bool { return healthy.count() == 3 })
}

func TestBus_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus(zerolog.Nop(), 8)
	bus.Start(ctx)
	cancel()
	bus.Wait()
}

func TestListenerFunc(t *testing.T) {
	called := false
	l := ListenerFunc{
		ListenerName: "fn",
		Fn: func(context.Context, lifecycle.Event) error {
			called = true
			return nil
		},
	}
	if l.Name() != "fn" {
		t.Errorf("unexpected name %s", l.Name())
	}
	if err := l.Handle(context.Background(), lifecycle.Event{}); err != nil {
		t.Fatal(err)
	}
	if !called {
		t.Error("expected fn to be called")
	}
}

func TestRoutingKey(t *testing.T) {
	cases := []struct {
		entityType string
		toStatus   string
		want       string
	}{
		{"MedicationOrder", "DISCONTINUED", "medicationorder.discontinued"},
		{"Encounter", "IN_PROGRESS", "encounter.in_progress"},
		{"Invoice", "PARTIAL", "invoice.partial"},
	}
	for _, tc := range cases {
		key := routingKey(lifecycle.Event{EntityType: tc.entityType, ToStatus: tc.toStatus})
		if key != tc.want {
			t.Errorf("routingKey(%s, %s) = %s, want %s", tc.entityType, tc.toStatus, key, tc.want)
		}
	}
}
