// Package sqlstore is a SQLite storage backend. Each collection is a table of
// JSON documents; filters are evaluated with json_extract and relation
// replacement runs in a single transaction.
package sqlstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Store implements store.Backend on SQLite.
type Store struct {
	db *sqlx.DB
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for maintenance and tests.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Events() store.Entities[model.Event] {
	return &Collection[model.Event, *model.Event]{db: s.db, table: store.CollEvents}
}

func (s *Store) EventTypes() store.Entities[model.EventType] {
	return &Collection[model.EventType, *model.EventType]{db: s.db, table: store.CollEventTypes}
}

func (s *Store) Triggers() store.Entities[model.Trigger] {
	return &Collection[model.Trigger, *model.Trigger]{db: s.db, table: store.CollTriggers}
}

func (s *Store) Rules() store.Entities[model.Rule] {
	return &Collection[model.Rule, *model.Rule]{db: s.db, table: store.CollRules}
}

func (s *Store) Relations(kind store.RelationKind) store.Relations {
	return &Relations{db: s.db, kind: kind}
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperr.Repository("ping", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Close()
}

// Collection is the Entity Store for one table.
type Collection[T any, P store.DocPtr[T]] struct {
	db    *sqlx.DB
	table string
}

func (c *Collection[T, P]) Insert(ctx context.Context, doc *T) (id.EntityID, error) {
	p := P(doc)
	if p.EntityID().IsZero() {
		p.SetEntityID(id.New())
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return id.EntityID{}, apperr.Repository("insert", err)
	}
	q := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES (?, ?)", c.table)
	if _, err := c.db.ExecContext(ctx, q, p.EntityID().String(), string(raw)); err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return id.EntityID{}, apperr.Conflict("duplicate id %s", p.EntityID())
		}
		return id.EntityID{}, apperr.Repository("insert", err)
	}
	return p.EntityID(), nil
}

func (c *Collection[T, P]) FindByID(ctx context.Context, v id.EntityID) (*T, error) {
	var raw string
	q := fmt.Sprintf("SELECT doc FROM %s WHERE id = ?", c.table)
	err := c.db.GetContext(ctx, &raw, q, v.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Repository("find", err)
	}
	return decode[T](raw)
}

func (c *Collection[T, P]) FindOne(ctx context.Context, f store.Filter) (*T, error) {
	out, err := c.FindAll(ctx, f, store.Page{Limit: 1})
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out[0], nil
}

func (c *Collection[T, P]) FindAll(ctx context.Context, f store.Filter, p store.Page) ([]*T, error) {
	where, args, err := whereClause(f)
	if err != nil {
		return nil, err
	}
	limit := -1
	if p.Limit > 0 {
		limit = p.Limit
	}
	q := fmt.Sprintf("SELECT doc FROM %s%s ORDER BY seq LIMIT ? OFFSET ?", c.table, where)
	args = append(args, limit, p.Skip)

	var raws []string
	if err := c.db.SelectContext(ctx, &raws, q, args...); err != nil {
		return nil, apperr.Repository("find", err)
	}
	out := make([]*T, 0, len(raws))
	for _, raw := range raws {
		doc, err := decode[T](raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

func (c *Collection[T, P]) Update(ctx context.Context, v id.EntityID, fields map[string]any) (*T, error) {
	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, apperr.Repository("update", err)
	}
	defer tx.Rollback()

	var raw string
	err = tx.GetContext(ctx, &raw, fmt.Sprintf("SELECT doc FROM %s WHERE id = ?", c.table), v.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Repository("update", err)
	}

	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, apperr.Repository("update", err)
	}
	if err := store.ApplyFields(m, fields); err != nil {
		return nil, err
	}
	next, err := json.Marshal(m)
	if err != nil {
		return nil, apperr.Repository("update", err)
	}
	doc, err := decode[T](string(next))
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET doc = ? WHERE id = ?", c.table), string(next), v.String()); err != nil {
		return nil, apperr.Repository("update", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, apperr.Repository("update", err)
	}
	return doc, nil
}

func (c *Collection[T, P]) Delete(ctx context.Context, v id.EntityID) (bool, error) {
	res, err := c.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.table), v.String())
	if err != nil {
		return false, apperr.Repository("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Repository("delete", err)
	}
	return n > 0, nil
}

func decode[T any](raw string) (*T, error) {
	doc, err := store.DecodeDoc[T]([]byte(raw))
	if err != nil {
		return nil, apperr.Repository("decode", err)
	}
	return doc, nil
}

// whereClause renders f as a conjunction of json_extract equalities, in
// sorted key order so the generated SQL is stable.
func whereClause(f store.Filter) (string, []any, error) {
	if len(f) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		if !validField(k) {
			return "", nil, apperr.Validation("invalid filter field %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		v, err := sqlValue(f[k])
		if err != nil {
			return "", nil, apperr.Repository("find", err)
		}
		conds = append(conds, fmt.Sprintf("json_extract(doc, '$.%s') = ?", k))
		args = append(args, v)
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

func validField(k string) bool {
	if k == "" {
		return false
	}
	for _, r := range k {
		if !(r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// sqlValue converts a filter value to what json_extract yields for it.
func sqlValue(v any) (any, error) {
	switch x := v.(type) {
	case string, int, int64, float64:
		return x, nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case fmt.Stringer:
		return x.String(), nil
	}
	return nil, fmt.Errorf("unsupported filter value %T", v)
}

// Relations is one association kind stored in the shared relations table.
type Relations struct {
	db   *sqlx.DB
	kind store.RelationKind
}

type pairRow struct {
	A string `db:"a"`
	B string `db:"b"`
}

func (r *Relations) Link(ctx context.Context, a, b id.EntityID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO relations (kind, a, b) VALUES (?, ?, ?)",
		string(r.kind), a.String(), b.String())
	if err != nil {
		return false, apperr.Repository("link", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Repository("link", err)
	}
	return n > 0, nil
}

func (r *Relations) Unlink(ctx context.Context, a, b id.EntityID) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM relations WHERE kind = ? AND a = ? AND b = ?",
		string(r.kind), a.String(), b.String())
	if err != nil {
		return false, apperr.Repository("unlink", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperr.Repository("unlink", err)
	}
	return n > 0, nil
}

func (r *Relations) ListByA(ctx context.Context, a id.EntityID) ([]store.Pair, error) {
	return r.list(ctx, "a", a)
}

func (r *Relations) ListByB(ctx context.Context, b id.EntityID) ([]store.Pair, error) {
	return r.list(ctx, "b", b)
}

func (r *Relations) ReplaceAllForA(ctx context.Context, a id.EntityID, bs []id.EntityID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperr.Repository("replace", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM relations WHERE kind = ? AND a = ?", string(r.kind), a.String()); err != nil {
		return apperr.Repository("replace", err)
	}
	for _, b := range store.Dedup(bs) {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO relations (kind, a, b) VALUES (?, ?, ?)",
			string(r.kind), a.String(), b.String()); err != nil {
			return apperr.Repository("replace", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Repository("replace", err)
	}
	return nil
}

func (r *Relations) list(ctx context.Context, side string, v id.EntityID) ([]store.Pair, error) {
	var rows []pairRow
	q := fmt.Sprintf("SELECT a, b FROM relations WHERE kind = ? AND %s = ? ORDER BY seq", side)
	if err := r.db.SelectContext(ctx, &rows, q, string(r.kind), v.String()); err != nil {
		return nil, apperr.Repository("list", err)
	}
	out := make([]store.Pair, 0, len(rows))
	for _, row := range rows {
		a, err := id.Parse(row.A)
		if err != nil {
			return nil, apperr.Repository("list", err)
		}
		b, err := id.Parse(row.B)
		if err != nil {
			return nil, apperr.Repository("list", err)
		}
		out = append(out, store.Pair{A: a, B: b})
	}
	return out, nil
}
