// Package mongo provides the durable, production pattern.Store backed by
// MongoDB, mirroring internal/checkpoint/mongo's Client-plus-health.Pinger
// shape and Options/New(opts) construction (itself grounded on the
// teacher's features/session/mongo/clients/mongo client).
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/flowcraft/chatagent/internal/knowledge/pattern"
)

const (
	defaultCollection = "patterns"
	defaultOpTimeout   = 5 * time.Second
	clientName         = "pattern-mongo"
)

// Options configures the Mongo pattern store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store is the Mongo-backed pattern.Store, also exposing health.Pinger.
type Store struct {
	mongo   *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

var _ pattern.Store = (*Store)(nil)
var _ health.Pinger = (*Store)(nil)

// document is the BSON-mapped persisted shape of a pattern.Pattern (spec
// §6's patterns table: id, name, domain, category, node_types (JSON),
// schema_fingerprint, success_count, last_used_at, flow_data (JSON)).
type document struct {
	ID                string `bson:"_id"`
	Name              string `bson:"name"`
	Domain            string `bson:"domain"`
	Category          string `bson:"category"`
	NodeTypes         []string `bson:"node_types"`
	SchemaFingerprint string `bson:"schema_fingerprint"`
	SuccessCount      int `bson:"success_count"`
	LastUsedAt        time.Time `bson:"last_used_at"`
	// FlowData is stored as its raw JSON text rather than decoded into a
	// BSON document: its shape is owned by internal/patchir, and this
	// store has no business parsing it just to round-trip it.
	FlowData string `bson:"flow_data"`
}

// New constructs a Store, ensuring the indexes this store's Search relies
// on (domain, category, node_types) exist.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("pattern/mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("pattern/mongo: database is required")
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
	_, err := coll.Indexes().CreateMany(ctx, []mongodriver.IndexModel{
		{Keys: bson.D{{Key: "domain", Value: 1}, {Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "node_types", Value: 1}}},
		{Keys: bson.D{{Key: "last_used_at", Value: -1}}},
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

// Get fetches one pattern by id.
func (s *Store) Get(ctx context.Context, id string) (pattern.Pattern, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	var doc document
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return pattern.Pattern{}, pattern.ErrNotFound
	}
	if err != nil {
		return pattern.Pattern{}, err
	}
	return fromDocument(doc), nil
}

// Search returns every pattern matching filter, most-recently-used first.
// NodeTypes overlap is evaluated with $in since Mongo's array contains
// semantics already express "any element in common".
func (s *Store) Search(ctx context.Context, filter pattern.Filter) ([]pattern.Pattern, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := bson.D{}
	if filter.Domain != "" {
		query = append(query, bson.E{Key: "domain", Value: filter.Domain})
	}
	if filter.Category != "" {
		query = append(query, bson.E{Key: "category", Value: filter.Category})
	}
	if len(filter.NodeTypes) > 0 {
		query = append(query, bson.E{Key: "node_types", Value: bson.D{{Key: "$in", Value: filter.NodeTypes}}})
	}

	cur, err := s.coll.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "last_used_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]pattern.Pattern, len(docs))
	for i, d := range docs {
		out[i] = fromDocument(d)
	}
	return out, nil
}

// Save upserts p, keyed by its ID.
func (s *Store) Save(ctx context.Context, p pattern.Pattern) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	doc := toDocument(p)
	_, err := s.coll.ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: doc.ID}},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

// RecordUse increments success_count and sets last_used_at atomically.
func (s *Store) RecordUse(ctx context.Context, id string, usedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{
			{Key: "$inc", Value: bson.D{{Key: "success_count", Value: 1}}},
			{Key: "$set", Value: bson.D{{Key: "last_used_at", Value: usedAt}}},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return pattern.ErrNotFound
	}
	return nil
}

func toDocument(p pattern.Pattern) document {
	return document{
		ID:                p.ID,
		Name:              p.Name,
		Domain:            p.Domain,
		Category:          p.Category,
		NodeTypes:         append([]string(nil), p.NodeTypes...),
		SchemaFingerprint: p.SchemaFingerprint,
		SuccessCount:      p.SuccessCount,
		LastUsedAt:        p.LastUsedAt,
		FlowData:          string(p.FlowData),
	}
}

func fromDocument(d document) pattern.Pattern {
	return pattern.Pattern{
		ID:                d.ID,
		Name:              d.Name,
		Domain:            d.Domain,
		Category:          d.Category,
		NodeTypes:         append([]string(nil), d.NodeTypes...),
		SchemaFingerprint: d.SchemaFingerprint,
		SuccessCount:      d.SuccessCount,
		LastUsedAt:        d.LastUsedAt,
		FlowData:          json.RawMessage(d.FlowData),
	}
}
