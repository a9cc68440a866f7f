// Package memstore is an in-process storage backend. Documents are kept as
// JSON so that filters and partial updates behave like the persistent
// backends; every operation, including ReplaceAllForA, is atomic under the
// store lock.
package memstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
)

// Store implements store.Backend in memory.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*table
	relations   map[store.RelationKind]*relations
}

type record struct {
	id  id.EntityID
	doc map[string]any
}

// table keeps records in insertion order.
type table struct {
	rows  []*record
	index map[id.EntityID]int
}

// New returns an empty store.
func New() *Store {
	s := &Store{
		collections: make(map[string]*table),
		relations:   make(map[store.RelationKind]*relations),
	}
	for _, name := range []string{store.CollEvents, store.CollEventTypes, store.CollTriggers, store.CollRules} {
		s.collections[name] = &table{index: make(map[id.EntityID]int)}
	}
	for _, k := range store.Kinds {
		s.relations[k] = &relations{s: s, set: make(map[store.Pair]struct{})}
	}
	return s
}

func (s *Store) Events() store.Entities[model.Event] {
	return &Collection[model.Event, *model.Event]{s: s, t: s.collections[store.CollEvents]}
}

func (s *Store) EventTypes() store.Entities[model.EventType] {
	return &Collection[model.EventType, *model.EventType]{s: s, t: s.collections[store.CollEventTypes]}
}

func (s *Store) Triggers() store.Entities[model.Trigger] {
	return &Collection[model.Trigger, *model.Trigger]{s: s, t: s.collections[store.CollTriggers]}
}

func (s *Store) Rules() store.Entities[model.Rule] {
	return &Collection[model.Rule, *model.Rule]{s: s, t: s.collections[store.CollRules]}
}

func (s *Store) Relations(kind store.RelationKind) store.Relations {
	return s.relations[kind]
}

func (s *Store) Ping(ctx context.Context) error  { return ctx.Err() }
func (s *Store) Close(ctx context.Context) error { return nil }

// Collection is the Entity Store for one document kind.
type Collection[T any, P store.DocPtr[T]] struct {
	s *Store
	t *table
}

func (c *Collection[T, P]) Insert(ctx context.Context, doc *T) (id.EntityID, error) {
	if err := ctx.Err(); err != nil {
		return id.EntityID{}, apperr.Repository("insert", err)
	}
	p := P(doc)
	if p.EntityID().IsZero() {
		p.SetEntityID(id.New())
	}
	m, err := store.EncodeDoc(doc)
	if err != nil {
		return id.EntityID{}, apperr.Repository("insert", err)
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	if _, dup := c.t.index[p.EntityID()]; dup {
		return id.EntityID{}, apperr.Conflict("duplicate id %s", p.EntityID())
	}
	c.t.index[p.EntityID()] = len(c.t.rows)
	c.t.rows = append(c.t.rows, &record{id: p.EntityID(), doc: m})
	return p.EntityID(), nil
}

func (c *Collection[T, P]) FindByID(ctx context.Context, v id.EntityID) (*T, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	i, ok := c.t.index[v]
	if !ok {
		return nil, nil
	}
	return decode[T](c.t.rows[i].doc)
}

func (c *Collection[T, P]) FindOne(ctx context.Context, f store.Filter) (*T, error) {
	out, err := c.FindAll(ctx, f, store.Page{Limit: 1})
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

func (c *Collection[T, P]) FindAll(ctx context.Context, f store.Filter, p store.Page) ([]*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Repository("find", err)
	}
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	out := make([]*T, 0)
	skipped := 0
	for _, r := range c.t.rows {
		ok, err := store.Matches(r.doc, f)
		if err != nil {
			return nil, apperr.Repository("find", err)
		}
		if !ok {
			continue
		}
		if skipped < p.Skip {
			skipped++
			continue
		}
		doc, err := decode[T](r.doc)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
		if p.Limit > 0 && len(out) == p.Limit {
			break
		}
	}
	return out, nil
}

func (c *Collection[T, P]) Update(ctx context.Context, v id.EntityID, fields map[string]any) (*T, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Repository("update", err)
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	i, ok := c.t.index[v]
	if !ok {
		return nil, nil
	}
	next := make(map[string]any, len(c.t.rows[i].doc))
	for k, val := range c.t.rows[i].doc {
		next[k] = val
	}
	if err := store.ApplyFields(next, fields); err != nil {
		return nil, err
	}
	doc, err := decode[T](next)
	if err != nil {
		return nil, err
	}
	c.t.rows[i].doc = next
	return doc, nil
}

func (c *Collection[T, P]) Delete(ctx context.Context, v id.EntityID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperr.Repository("delete", err)
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	i, ok := c.t.index[v]
	if !ok {
		return false, nil
	}
	c.t.rows = append(c.t.rows[:i], c.t.rows[i+1:]...)
	delete(c.t.index, v)
	for j := i; j < len(c.t.rows); j++ {
		c.t.index[c.t.rows[j].id] = j
	}
	return true, nil
}

func decode[T any](m map[string]any) (*T, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, apperr.Repository("decode", err)
	}
	doc, err := store.DecodeDoc[T](b)
	if err != nil {
		return nil, apperr.Repository("decode", err)
	}
	return doc, nil
}

// relations is one association table, ordered by insertion.
type relations struct {
	s     *Store
	pairs []store.Pair
	set   map[store.Pair]struct{}
}

func (r *relations) Link(ctx context.Context, a, b id.EntityID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperr.Repository("link", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p := store.Pair{A: a, B: b}
	if _, ok := r.set[p]; ok {
		return false, nil
	}
	r.set[p] = struct{}{}
	r.pairs = append(r.pairs, p)
	return true, nil
}

func (r *relations) Unlink(ctx context.Context, a, b id.EntityID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperr.Repository("unlink", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p := store.Pair{A: a, B: b}
	if _, ok := r.set[p]; !ok {
		return false, nil
	}
	delete(r.set, p)
	r.pairs = r.filter(func(q store.Pair) bool { return q != p })
	return true, nil
}

func (r *relations) ListByA(ctx context.Context, a id.EntityID) ([]store.Pair, error) {
	return r.list(ctx, func(p store.Pair) bool { return p.A == a })
}

func (r *relations) ListByB(ctx context.Context, b id.EntityID) ([]store.Pair, error) {
	return r.list(ctx, func(p store.Pair) bool { return p.B == b })
}

func (r *relations) ReplaceAllForA(ctx context.Context, a id.EntityID, bs []id.EntityID) error {
	if err := ctx.Err(); err != nil {
		return apperr.Repository("replace", err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.pairs = r.filter(func(p store.Pair) bool {
		if p.A == a {
			delete(r.set, p)
			return false
		}
		return true
	})
	for _, b := range store.Dedup(bs) {
		p := store.Pair{A: a, B: b}
		r.set[p] = struct{}{}
		r.pairs = append(r.pairs, p)
	}
	return nil
}

func (r *relations) list(ctx context.Context, keep func(store.Pair) bool) ([]store.Pair, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Repository("list", err)
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]store.Pair, 0)
	for _, p := range r.pairs {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// filter must be called with the write lock held.
func (r *relations) filter(keep func(store.Pair) bool) []store.Pair {
	out := r.pairs[:0]
	for _, p := range r.pairs {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
