// Package mongostore is the MongoDB storage backend. Collection names match
// the ones the platform has always used so existing databases keep working.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
)

// Options configures Open.
type Options struct {
	URI      string
	Database string
	// Transactions makes ReplaceAllForA atomic. It requires a replica set.
	Transactions bool
	Timeout      time.Duration
}

// Store implements store.Backend on MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	txn    bool
}

// Open connects, pings and ensures indexes.
func Open(ctx context.Context, o Options) (*Store, error) {
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	opts := options.Client().ApplyURI(o.URI).SetServerSelectionTimeout(o.Timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	s := &Store{client: client, db: client.Database(o.Database), txn: o.Transactions}
	if err := s.Ping(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// EnsureIndexes creates the event lookup indexes and one unique compound
// index per relation collection.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	events := []mongo.IndexModel{
		{Keys: bson.D{{Key: "service_id", Value: 1}}},
		{Keys: bson.D{{Key: "microservice_id", Value: 1}}},
		{Keys: bson.D{{Key: "function_id", Value: 1}}},
	}
	if _, err := s.db.Collection(store.CollEvents).Indexes().CreateMany(ctx, events); err != nil {
		return apperr.Repository("ensure indexes", err)
	}
	for _, k := range store.Kinds {
		af, bf := k.Fields()
		idx := []mongo.IndexModel{
			{Keys: bson.D{{Key: af, Value: 1}, {Key: bf, Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: bf, Value: 1}}},
		}
		if _, err := s.db.Collection(string(k)).Indexes().CreateMany(ctx, idx); err != nil {
			return apperr.Repository("ensure indexes", err)
		}
	}
	return nil
}

func (s *Store) Events() store.Entities[model.Event] {
	return &Collection[model.Event, *model.Event]{c: s.db.Collection(store.CollEvents)}
}

func (s *Store) EventTypes() store.Entities[model.EventType] {
	return &Collection[model.EventType, *model.EventType]{c: s.db.Collection(store.CollEventTypes)}
}

func (s *Store) Triggers() store.Entities[model.Trigger] {
	return &Collection[model.Trigger, *model.Trigger]{c: s.db.Collection(store.CollTriggers)}
}

func (s *Store) Rules() store.Entities[model.Rule] {
	return &Collection[model.Rule, *model.Rule]{c: s.db.Collection(store.CollRules)}
}

func (s *Store) Relations(kind store.RelationKind) store.Relations {
	af, bf := kind.Fields()
	return &Relations{client: s.client, c: s.db.Collection(string(kind)), a: af, b: bf, txn: s.txn}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return apperr.Repository("ping", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Database exposes the underlying handle for maintenance and tests.
func (s *Store) Database() *mongo.Database { return s.db }

// Drop removes the whole database.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// Collection is the Entity Store for one Mongo collection.
type Collection[T any, P store.DocPtr[T]] struct {
	c *mongo.Collection
}

func (c *Collection[T, P]) Insert(ctx context.Context, doc *T) (id.EntityID, error) {
	p := P(doc)
	if p.EntityID().IsZero() {
		p.SetEntityID(id.New())
	}
	if _, err := c.c.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return id.EntityID{}, apperr.Conflict("duplicate id %s", p.EntityID())
		}
		return id.EntityID{}, apperr.Repository("insert", err)
	}
	return p.EntityID(), nil
}

func (c *Collection[T, P]) FindByID(ctx context.Context, v id.EntityID) (*T, error) {
	return c.findOne(ctx, bson.M{"_id": v.ObjectID()})
}

func (c *Collection[T, P]) FindOne(ctx context.Context, f store.Filter) (*T, error) {
	return c.findOne(ctx, bson.M(f))
}

func (c *Collection[T, P]) findOne(ctx context.Context, filter bson.M) (*T, error) {
	var out T
	err := c.c.FindOne(ctx, filter).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Repository("find", err)
	}
	return &out, nil
}

func (c *Collection[T, P]) FindAll(ctx context.Context, f store.Filter, p store.Page) ([]*T, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if p.Skip > 0 {
		opts.SetSkip(int64(p.Skip))
	}
	if p.Limit > 0 {
		opts.SetLimit(int64(p.Limit))
	}
	filter := bson.M(f)
	if filter == nil {
		filter = bson.M{}
	}
	cur, err := c.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, apperr.Repository("find", err)
	}
	defer cur.Close(ctx)

	out := make([]*T, 0)
	for cur.Next(ctx) {
		var doc T
		if err := cur.Decode(&doc); err != nil {
			return nil, apperr.Repository("decode", err)
		}
		out = append(out, &doc)
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Repository("find", err)
	}
	return out, nil
}

func (c *Collection[T, P]) Update(ctx context.Context, v id.EntityID, fields map[string]any) (*T, error) {
	for k := range fields {
		if k == "id" || k == "_id" {
			return nil, apperr.Validation("field %q is immutable", k)
		}
	}
	if len(fields) == 0 {
		return c.FindByID(ctx, v)
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var out T
	err := c.c.FindOneAndUpdate(ctx, bson.M{"_id": v.ObjectID()}, bson.M{"$set": bson.M(fields)}, opts).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Repository("update", err)
	}
	return &out, nil
}

func (c *Collection[T, P]) Delete(ctx context.Context, v id.EntityID) (bool, error) {
	res, err := c.c.DeleteOne(ctx, bson.M{"_id": v.ObjectID()})
	if err != nil {
		return false, apperr.Repository("delete", err)
	}
	return res.DeletedCount > 0, nil
}

// Relations is one association collection with fields named after the kind.
type Relations struct {
	client *mongo.Client
	c      *mongo.Collection
	a, b   string
	txn    bool
}

func (r *Relations) Link(ctx context.Context, a, b id.EntityID) (bool, error) {
	key := bson.M{r.a: a.ObjectID(), r.b: b.ObjectID()}
	res, err := r.c.UpdateOne(ctx, key, bson.M{"$setOnInsert": key}, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// lost a concurrent upsert race for the same pair
		return false, nil
	}
	if err != nil {
		return false, apperr.Repository("link", err)
	}
	return res.UpsertedCount > 0, nil
}

func (r *Relations) Unlink(ctx context.Context, a, b id.EntityID) (bool, error) {
	res, err := r.c.DeleteOne(ctx, bson.M{r.a: a.ObjectID(), r.b: b.ObjectID()})
	if err != nil {
		return false, apperr.Repository("unlink", err)
	}
	return res.DeletedCount > 0, nil
}

func (r *Relations) ListByA(ctx context.Context, a id.EntityID) ([]store.Pair, error) {
	return r.list(ctx, bson.M{r.a: a.ObjectID()})
}

func (r *Relations) ListByB(ctx context.Context, b id.EntityID) ([]store.Pair, error) {
	return r.list(ctx, bson.M{r.b: b.ObjectID()})
}

// ReplaceAllForA runs in a transaction when enabled. Without one, a failure
// after the delete leaves a partial set behind.
func (r *Relations) ReplaceAllForA(ctx context.Context, a id.EntityID, bs []id.EntityID) error {
	if !r.txn {
		return r.replace(ctx, a, bs)
	}
	sess, err := r.client.StartSession()
	if err != nil {
		return apperr.Repository("replace", err)
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, r.replace(sc, a, bs)
	})
	if err != nil && !apperr.Is(err, apperr.KindRepository) {
		return apperr.Repository("replace", err)
	}
	return err
}

func (r *Relations) replace(ctx context.Context, a id.EntityID, bs []id.EntityID) error {
	if _, err := r.c.DeleteMany(ctx, bson.M{r.a: a.ObjectID()}); err != nil {
		return apperr.Repository("replace", err)
	}
	bs = store.Dedup(bs)
	if len(bs) == 0 {
		return nil
	}
	docs := make([]any, 0, len(bs))
	for _, b := range bs {
		docs = append(docs, bson.D{{Key: r.a, Value: a.ObjectID()}, {Key: r.b, Value: b.ObjectID()}})
	}
	if _, err := r.c.InsertMany(ctx, docs); err != nil {
		return apperr.Repository("replace", err)
	}
	return nil
}

func (r *Relations) list(ctx context.Context, filter bson.M) ([]store.Pair, error) {
	cur, err := r.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, apperr.Repository("list", err)
	}
	defer cur.Close(ctx)

	out := make([]store.Pair, 0)
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, apperr.Repository("list", err)
		}
		a, aok := raw[r.a].(primitive.ObjectID)
		b, bok := raw[r.b].(primitive.ObjectID)
		if !aok || !bok {
			continue
		}
		out = append(out, store.Pair{A: id.FromObjectID(a), B: id.FromObjectID(b)})
	}
	if err := cur.Err(); err != nil {
		return nil, apperr.Repository("list", err)
	}
	return out, nil
}
