// Package inmem implements events.Sink in memory, for tests and demos.
package inmem

import (
	"context"
	"sync"

	"github.com/flowcraft/chatagent/internal/events"
)

// Sink is a thread-safe, process-local events.Sink. Seq assignment itself
// lives in events.Recorder; this Sink only appends/lists in insertion
// order.
type Sink struct {
	mu   sync.Mutex
	byID map[string][]events.Event
}

// New constructs an empty Sink.
func New() *Sink {
	return &Sink{byID: make(map[string][]events.Event)}
}

// Append stores event as-is, appending it to its session's log.
func (s *Sink) Append(_ context.Context, event events.Event) (events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[event.SessionID] = append(s.byID[event.SessionID], event)
	return event, nil
}

// List returns a copy of sessionID's event log in append order.
func (s *Sink) List(_ context.Context, sessionID string) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.byID[sessionID]
	out := make([]events.Event, len(log))
	copy(out, log)
	return out, nil
}
