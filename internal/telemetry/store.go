// Package telemetry records routing telemetry events. Events land in an
// in-memory log, fan out to SSE subscribers, and optionally forward to an
// external collaborator. Telemetry is advisory: nothing here can fail a
// message pipeline.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one recorded telemetry datum. NodeID is empty for events not
// attributable to a single node, such as schema registrations.
type Event struct {
	ID        string         `json:"event_id"`
	Type      string         `json:"event_type"`
	NodeID    string         `json:"node_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Broadcaster receives every stored event. The SSE broker satisfies it.
type Broadcaster interface {
	Broadcast(eventType string, data any)
}

// Forwarder pushes events to an external collaborator. The HTTP sink
// satisfies it.
type Forwarder interface {
	Forward(ctx context.Context, e Event) error
}

// Store is the in-memory telemetry log.
type Store struct {
	mu     sync.RWMutex
	events []Event

	bc     Broadcaster
	fwd    Forwarder
	logger *slog.Logger
}

// NewStore creates a telemetry store. bc and fwd may be nil.
func NewStore(bc Broadcaster, fwd Forwarder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{bc: bc, fwd: fwd, logger: logger}
}

// Emit records an event, broadcasts it, and forwards it downstream. A
// forwarding failure is logged and dropped.
func (s *Store) Emit(ctx context.Context, eventType, nodeID string, data map[string]any) Event {
	e := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		NodeID:    nodeID,
		Data:      copyData(data),
		Timestamp: time.Now().UTC(),
	}

	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()

	if s.bc != nil {
		s.bc.Broadcast(e.Type, e)
	}
	if s.fwd != nil {
		if err := s.fwd.Forward(ctx, e); err != nil {
			s.logger.Debug("telemetry: forward failed",
				slog.String("event_type", e.Type),
				slog.String("error", err.Error()))
		}
	}
	return e
}

// List returns the most recent limit events, oldest first. A non-positive
// limit returns everything.
func (s *Store) List(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if limit > 0 && len(s.events) > limit {
		start = len(s.events) - limit
	}
	out := make([]Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out
}

// Len returns the number of recorded events.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func copyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
