// Package mongo provides the durable events.Sink backed by MongoDB,
// indexed on (session_id, seq) per spec §6's session_events table.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/flowcraft/chatagent/internal/events"
)

const (
	defaultCollection = "session_events"
	defaultOpTimeout   = 5 * time.Second
)

// Options configures the Mongo event sink.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Sink is the Mongo-backed events.Sink.
type Sink struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New constructs a Sink, ensuring the (session_id, seq) unique index exists.
func New(opts Options) (*Sink, error) {
	if opts.Client == nil {
		return nil, errors.New("events/mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("events/mongo: database is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	_, err := coll.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, err
	}
	return &Sink{coll: coll, timeout: timeout}, nil
}

// Append inserts event. A duplicate (session_id, seq) pair — which should
// never occur given events.Recorder's single-writer sequencing — surfaces
// as a driver error rather than silently overwriting history.
func (s *Sink) Append(ctx context.Context, event events.Event) (events.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if event.EmittedAt.IsZero() {
		event.EmittedAt = time.Now().UTC()
	}
	if _, err := s.coll.InsertOne(ctx, event); err != nil {
		return events.Event{}, err
	}
	return event, nil
}

// List returns sessionID's events ordered by seq ascending.
func (s *Sink) List(ctx context.Context, sessionID string) ([]events.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	cur, err := s.coll.Find(ctx,
		bson.D{{Key: "session_id", Value: sessionID}},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []events.Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
