package events

import (
	"context"
	"sync"
)

// Sink is the durable append-only event log contract. Append persists an
// event whose Seq the Recorder has already assigned; List replays a
// session's events in seq order for audit/debugging.
type Sink interface {
	Append(ctx context.Context, event Event) (Event, error)
	List(ctx context.Context, sessionID string) ([]Event, error)
}

// Publisher mirrors appended events to a live subscriber stream, one
// channel per session id. A nil Publisher is valid: Recorder then behaves
// as a durable-log-only sink with no live fanout.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Recorder is the single emission point every node handler calls at entry
// and exit (spec §4.6): it assigns per-session sequence numbers itself,
// appends durably to Sink, and mirrors to Publisher best-effort (a publish failure never
// fails the node).
type Recorder struct {
	sink      Sink
	publisher Publisher

	mu   sync.Mutex
	seqs map[string]int64
}

// NewRecorder constructs a Recorder. publisher may be nil.
func NewRecorder(sink Sink, publisher Publisher) *Recorder {
	return &Recorder{sink: sink, publisher: publisher, seqs: make(map[string]int64)}
}

// Emit appends event (Seq is assigned internally, any caller-supplied value
// is ignored) and, if a Publisher is configured, mirrors it. Mirroring
// errors are swallowed: the durable log is authoritative, the live stream
// is best-effort.
func (r *Recorder) Emit(ctx context.Context, event Event) (Event, error) {
	r.mu.Lock()
	event.Seq = r.nextSeq(event.SessionID)
	r.mu.Unlock()

	appended, err := r.sink.Append(ctx, event)
	if err != nil {
		return Event{}, err
	}
	if r.publisher != nil {
		_ = r.publisher.Publish(ctx, appended)
	}
	return appended, nil
}

func (r *Recorder) nextSeq(sessionID string) int64 {
	r.seqs[sessionID]++
	return r.seqs[sessionID]
}

// History replays a session's full event log in seq order.
func (r *Recorder) History(ctx context.Context, sessionID string) ([]Event, error) {
	return r.sink.List(ctx, sessionID)
}
