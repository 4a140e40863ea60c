package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/credtrust/credtrust/store"
)

// StoreSink persists events as security-event rows. Each write is its own unit
// of work and a failed write is logged and swallowed: recording must never
// take down the operation it records.
type StoreSink struct {
	events  store.EventStore
	logger  *slog.Logger
	timeout time.Duration
}

// NewStoreSink creates a sink writing to the given event store. A nil logger
// falls back to slog.Default().
func NewStoreSink(events store.EventStore, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{
		events:  events,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

func (s *StoreSink) Emit(_ context.Context, event Event) {
	if s == nil || s.events == nil {
		return
	}

	row := &store.SecurityEvent{
		ID:        uuid.New(),
		EventType: event.EventType,
		Detail:    detailWithOutcome(event),
		IP:        event.IP,
		UserAgent: event.UserAgent,
		CreatedAt: event.Timestamp,
	}
	if event.UserID != "" {
		if id, err := uuid.Parse(event.UserID); err == nil {
			row.UserID = &id
		}
	}

	// Dispatch runs detached from the request, so the row gets its own
	// deadline instead of the caller's.
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.events.SaveSecurityEvent(ctx, row); err != nil {
		s.logger.Error("security event write failed",
			"event_type", event.EventType,
			"error", err,
		)
	}
}

func detailWithOutcome(event Event) string {
	if event.Success || event.Error == "" {
		return event.Detail
	}
	if event.Detail == "" {
		return event.Error
	}
	return event.Detail + ": " + event.Error
}
