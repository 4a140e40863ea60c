package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/credtrust/credtrust/store"
)

type collectSink struct {
	mu     sync.Mutex
	events []Event
	block  chan struct{}
}

func (s *collectSink) Emit(_ context.Context, event Event) {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *collectSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestDispatcherDelivers(t *testing.T) {
	sink := &collectSink{}
	d := NewDispatcher(sink, 8, true)

	d.Emit(context.Background(), Event{EventType: "login_success"})
	d.Close()

	if got := sink.len(); got != 1 {
		t.Fatalf("delivered = %d, want 1", got)
	}
}

func TestDispatcherDrainsOnClose(t *testing.T) {
	sink := &collectSink{}
	d := NewDispatcher(sink, 16, true)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "E"})
	}
	d.Close()

	if got := sink.len(); got != 10 {
		t.Fatalf("delivered = %d, want 10", got)
	}
	// Emit after close is a no-op.
	d.Emit(context.Background(), Event{EventType: "E"})
	if got := sink.len(); got != 10 {
		t.Fatalf("delivered after close = %d, want 10", got)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	sink := &collectSink{block: make(chan struct{})}
	d := NewDispatcher(sink, 1, true)

	// First event occupies the worker, second fills the buffer, the rest
	// must be shed without blocking.
	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "E"})
	}

	deadline := time.Now().Add(time.Second)
	for d.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events")
	}

	close(sink.block)
	d.Close()
}

func TestNilDispatcherIsSafe(t *testing.T) {
	var d *Dispatcher
	d.Emit(context.Background(), Event{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("nil dispatcher reported drops")
	}
}

type failingEventStore struct {
	err   error
	saved []*store.SecurityEvent
}

func (f *failingEventStore) SaveSecurityEvent(_ context.Context, event *store.SecurityEvent) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, event)
	return nil
}

func TestStoreSinkPersistsRow(t *testing.T) {
	es := &failingEventStore{}
	sink := NewStoreSink(es, slog.New(slog.NewTextHandler(io.Discard, nil)))

	userID := uuid.New()
	sink.Emit(context.Background(), Event{
		Timestamp: time.Now(),
		EventType: "login_failure",
		UserID:    userID.String(),
		Detail:    "bad credentials",
		IP:        "10.0.0.1",
		UserAgent: "cli/1.0",
		Error:     "invalid credentials",
	})

	if len(es.saved) != 1 {
		t.Fatalf("saved = %d, want 1", len(es.saved))
	}
	row := es.saved[0]
	if row.UserID == nil || *row.UserID != userID {
		t.Fatal("user id not carried onto the row")
	}
	if row.Detail != "bad credentials: invalid credentials" {
		t.Fatalf("Detail = %q", row.Detail)
	}
}

func TestStoreSinkSwallowsWriteFailure(t *testing.T) {
	es := &failingEventStore{err: errors.New("down")}
	sink := NewStoreSink(es, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Must not panic or propagate.
	sink.Emit(context.Background(), Event{EventType: "login_success", Success: true})
}
