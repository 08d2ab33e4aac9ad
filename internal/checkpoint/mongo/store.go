// Package mongo provides the durable, production checkpoint.Store backed by
// MongoDB. Grounded on the teacher's features/session/mongo/clients/mongo
// client: same Client-interface-plus-health.Pinger shape, same
// Options/New(opts) construction pattern, with Save as an idempotent
// ReplaceOne upsert keyed by session id — adapted to operate directly against *mongo.Collection
// (v2 driver) rather than the teacher's generated collection/cursor wrapper
// triad, since this store has no mock-generation step to serve.
package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/flowcraft/chatagent/internal/checkpoint"
	"github.com/flowcraft/chatagent/internal/state"
)

const (
	defaultCollection = "chatagent_sessions"
	defaultOpTimeout   = 5 * time.Second
	clientName         = "checkpoint-mongo"
)

// Options configures the Mongo checkpoint store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store is the Mongo-backed checkpoint.Store, also exposing health.Pinger
// so it can be registered with the service's health endpoint.
type Store struct {
	mongo   *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

var _ checkpoint.Store = (*Store)(nil)
var _ health.Pinger = (*Store)(nil)

// document is the BSON-mapped persisted shape of a state.Snapshot. Facts,
// Artifacts, and Debug are stored as bson.M so arbitrary nested values
// round-trip without a custom marshaler.
type document struct {
	SessionID   string         `bson:"_id"`
	Requirement string         `bson:"requirement"`
	RuntimeMode string         `bson:"runtime_mode"`
	Iteration   int            `bson:"iteration"`
	Done        bool           `bson:"done"`
	AutoApprove bool           `bson:"auto_approve"`
	Messages    []messageDoc   `bson:"messages"`
	Facts       bson.M         `bson:"facts"`
	Artifacts   bson.M         `bson:"artifacts"`
	Debug       bson.M         `bson:"debug"`
	TakenAt     time.Time      `bson:"taken_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
}

type messageDoc struct {
	Role      string         `bson:"role"`
	Content   string         `bson:"content"`
	ToolCalls []toolCallDoc  `bson:"tool_calls,omitempty"`
}

type toolCallDoc struct {
	Name string `bson:"name"`
	Args bson.M `bson:"args,omitempty"`
}

// New constructs a Store, ensuring the checkpoint collection exists with
// the indexes this store relies on.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("checkpoint/mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("checkpoint/mongo: database is required")
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
	if err := ensureIndexes(ctx, coll); err != nil {
		return nil, err
	}
	return &Store{mongo: opts.Client, coll: coll, timeout: timeout}, nil
}

func ensureIndexes(ctx context.Context, coll *mongodriver.Collection) error {
	_, err := coll.Indexes().CreateOne(ctx, mongodriver.IndexModel{
		Keys: bson.D{{Key: "updated_at", Value: 1}},
	})
	return err
}

// Name implements health.Pinger.
func (s *Store) Name() string { return clientName }

// Ping implements health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

// Save upserts the latest checkpoint for snap.SessionID.
func (s *Store) Save(ctx context.Context, snap state.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	doc := toDocument(snap)
	_, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: doc.SessionID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

// Load fetches the latest checkpoint for sessionID.
func (s *Store) Load(ctx context.Context, sessionID string) (state.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var doc document
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: sessionID}}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return state.Snapshot{}, checkpoint.ErrNotFound
	}
	if err != nil {
		return state.Snapshot{}, err
	}
	return fromDocument(doc), nil
}

// Delete removes sessionID's checkpoint.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: sessionID}})
	return err
}

func toDocument(snap state.Snapshot) document {
	messages := make([]messageDoc, len(snap.Messages))
	for i, m := range snap.Messages {
		calls := make([]toolCallDoc, len(m.ToolCalls))
		for j, c := range m.ToolCalls {
			calls[j] = toolCallDoc{Name: c.Name, Args: bson.M(c.Args)}
		}
		messages[i] = messageDoc{Role: string(m.Role), Content: m.Content, ToolCalls: calls}
	}
	return document{
		SessionID:   snap.SessionID,
		Requirement: snap.Requirement,
		RuntimeMode: snap.RuntimeMode,
		Iteration:   snap.Iteration,
		Done:        snap.Done,
		AutoApprove: snap.AutoApprove,
		Messages:    messages,
		Facts:       toBSONNested(snap.Facts),
		Artifacts:   toBSONNested(snap.Artifacts),
		Debug:       toBSONNested(snap.Debug),
		TakenAt:     snap.TakenAt,
		UpdatedAt:   time.Now().UTC(),
	}
}

func fromDocument(doc document) state.Snapshot {
	messages := make([]state.Message, len(doc.Messages))
	for i, m := range doc.Messages {
		calls := make([]state.ToolCall, len(m.ToolCalls))
		for j, c := range m.ToolCalls {
			calls[j] = state.ToolCall{Name: c.Name, Args: map[string]any(c.Args)}
		}
		messages[i] = state.Message{Role: state.Role(m.Role), Content: m.Content, ToolCalls: calls}
	}
	return state.Snapshot{
		SessionID:   doc.SessionID,
		Requirement: doc.Requirement,
		RuntimeMode: doc.RuntimeMode,
		Iteration:   doc.Iteration,
		Done:        doc.Done,
		AutoApprove: doc.AutoApprove,
		Messages:    messages,
		Facts:       fromBSONNested(doc.Facts),
		Artifacts:   fromBSONNested(doc.Artifacts),
		Debug:       fromBSONNested(doc.Debug),
		TakenAt:     doc.TakenAt,
	}
}

func toBSONNested(m map[string]map[string]any) bson.M {
	out := bson.M{}
	for domain, bucket := range m {
		out[domain] = bson.M(bucket)
	}
	return out
}

func fromBSONNested(m bson.M) map[string]map[string]any {
	out := make(map[string]map[string]any, len(m))
	for domain, bucket := range m {
		if nested, ok := bucket.(bson.M); ok {
			out[domain] = map[string]any(nested)
			continue
		}
		if nested, ok := bucket.(map[string]any); ok {
			out[domain] = nested
		}
	}
	return out
}
