// Package mongodoc stores documents in MongoDB collections.
//
// Every stored document carries a hidden _seq field so that unordered
// reads come back in insertion order, matching the other backends.
package mongodoc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/mickamy/docmap/odm"
	"github.com/mickamy/docmap/scope"
)

const seqKey = "_seq"

// Store is an odm.Store over a MongoDB database.
type Store struct {
	client *mongo.Client // nil when the caller owns the connection
	db     *mongo.Database

	mu   sync.Mutex
	last int64
}

var (
	_ odm.Store       = (*Store)(nil)
	_ odm.Initializer = (*Store)(nil)
	_ io.Closer       = (*Store)(nil)
)

// New returns a Store over db. Close does not disconnect db's client.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Connect dials uri, pings the server and returns a Store over database.
// Close disconnects.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodoc: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodoc: ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Find(ctx context.Context, coll string, q scope.Query) ([]odm.Record, error) {
	opts := options.Find().SetSort(sortSpec(q.Sorts))
	if q.Offset != nil && *q.Offset > 0 {
		opts.SetSkip(int64(*q.Offset))
	}
	if q.Limit != nil {
		if *q.Limit <= 0 {
			return nil, nil
		}
		opts.SetLimit(int64(*q.Limit))
	}

	cursor, err := s.db.Collection(coll).Find(ctx, filter(q.Conditions), opts)
	if err != nil {
		return nil, fmt.Errorf("mongodoc: find %s: %w", coll, err)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongodoc: find %s: %w", coll, err)
	}

	result := make([]odm.Record, 0, len(docs))
	for _, doc := range docs {
		result = append(result, record(doc))
	}
	return result, nil
}

func (s *Store) Count(ctx context.Context, coll string, q scope.Query) (int64, error) {
	n, err := s.db.Collection(coll).CountDocuments(ctx, filter(q.Conditions))
	if err != nil {
		return 0, fmt.Errorf("mongodoc: count %s: %w", coll, err)
	}
	return n, nil
}

func (s *Store) Insert(ctx context.Context, coll string, rec odm.Record) error {
	id, _ := rec[odm.IDKey].(string)
	if id == "" {
		return fmt.Errorf("mongodoc: record has no %s", odm.IDKey)
	}
	doc := body(rec)
	doc[odm.IDKey] = id
	doc[seqKey] = s.next()
	if _, err := s.db.Collection(coll).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongodoc: insert %s %s: %w", coll, id, err)
	}
	return nil
}

// Update replaces the stored body of id, keeping its insertion sequence.
// A missing document is odm.ErrNotFound.
func (s *Store) Update(ctx context.Context, coll string, id string, rec odm.Record) error {
	merged := bson.M{"$mergeObjects": bson.A{
		bson.M{odm.IDKey: "$" + odm.IDKey, seqKey: "$" + seqKey},
		bson.M{"$literal": body(rec)},
	}}
	pipeline := mongo.Pipeline{{{Key: "$replaceWith", Value: merged}}}

	res, err := s.db.Collection(coll).UpdateOne(ctx, bson.M{odm.IDKey: id}, pipeline)
	if err != nil {
		return fmt.Errorf("mongodoc: update %s %s: %w", coll, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s %s", odm.ErrNotFound, coll, id)
	}
	return nil
}

// Delete removes id. A missing document is odm.ErrNotFound.
func (s *Store) Delete(ctx context.Context, coll string, id string) error {
	res, err := s.db.Collection(coll).DeleteOne(ctx, bson.M{odm.IDKey: id})
	if err != nil {
		return fmt.Errorf("mongodoc: delete %s %s: %w", coll, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s %s", odm.ErrNotFound, coll, id)
	}
	return nil
}

// EnsureCollection creates the insertion-order index and one index per
// field in indexes. Collections themselves are created on first insert.
func (s *Store) EnsureCollection(ctx context.Context, coll string, indexes []string) error {
	models := []mongo.IndexModel{{Keys: bson.D{{Key: seqKey, Value: 1}}}}
	for _, field := range indexes {
		if field == "" {
			return errors.New("mongodoc: empty index field")
		}
		models = append(models, mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}})
	}
	if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("mongodoc: indexes on %s: %w", coll, err)
	}
	return nil
}

// Close disconnects the client if Connect created it.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx) //nolint:wrapcheck // thin wrapper
}

// next returns a process-monotonic insertion sequence.
func (s *Store) next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := time.Now().UnixNano()
	if n <= s.last {
		n = s.last + 1
	}
	s.last = n
	return n
}

func filter(conds []scope.Condition) bson.D {
	clauses := make([]bson.D, 0, len(conds))
	for _, c := range conds {
		switch c.Op {
		case scope.OpIn:
			values := c.Values
			if values == nil {
				values = []any{}
			}
			clauses = append(clauses, bson.D{{Key: c.Field, Value: bson.D{{Key: "$in", Value: values}}}})
		default:
			clauses = append(clauses, bson.D{{Key: c.Field, Value: bson.D{{Key: "$eq", Value: c.Value}}}})
		}
	}

	switch len(clauses) {
	case 0:
		return bson.D{}
	case 1:
		return clauses[0]
	}
	and := make(bson.A, len(clauses))
	for i, c := range clauses {
		and[i] = c
	}
	return bson.D{{Key: "$and", Value: and}}
}

func sortSpec(sorts []scope.Sort) bson.D {
	keys := make(bson.D, 0, len(sorts)+1)
	for _, srt := range sorts {
		dir := 1
		if srt.Desc {
			dir = -1
		}
		keys = append(keys, bson.E{Key: srt.Field, Value: dir})
	}
	return append(keys, bson.E{Key: seqKey, Value: 1})
}

func body(rec odm.Record) bson.M {
	doc := make(bson.M, len(rec))
	for k, v := range rec {
		if k != odm.IDKey && k != seqKey {
			doc[k] = v
		}
	}
	return doc
}

func record(doc bson.M) odm.Record {
	rec := make(odm.Record, len(doc))
	for k, v := range doc {
		if k == seqKey {
			continue
		}
		rec[k] = normalize(v)
	}
	return rec
}

// normalize maps driver decode types onto the plain Go values the other
// backends return.
func normalize(v any) any {
	switch x := v.(type) {
	case int32:
		return int64(x)
	case bson.DateTime:
		return x.Time().UTC()
	case bson.A:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = normalize(e.Value)
		}
		return out
	default:
		return v
	}
}
