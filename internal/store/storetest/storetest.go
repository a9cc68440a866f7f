// Package storetest is a conformance suite run against every store.Backend.
package storetest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
)

// Factory opens an empty backend for one subtest.
type Factory func(t *testing.T) store.Backend

// Run executes the whole suite.
func Run(t *testing.T, open Factory) {
	t.Run("EntityInsertFind", func(t *testing.T) { testEntityInsertFind(t, open(t)) })
	t.Run("EntityFilterPage", func(t *testing.T) { testEntityFilterPage(t, open(t)) })
	t.Run("EntityUpdate", func(t *testing.T) { testEntityUpdate(t, open(t)) })
	t.Run("EntityDelete", func(t *testing.T) { testEntityDelete(t, open(t)) })
	t.Run("RuleRoundTrip", func(t *testing.T) { testRuleRoundTrip(t, open(t)) })
	t.Run("LinkIdempotent", func(t *testing.T) { testLinkIdempotent(t, open(t)) })
	t.Run("UnlinkIdempotent", func(t *testing.T) { testUnlinkIdempotent(t, open(t)) })
	t.Run("ReplaceOverwrites", func(t *testing.T) { testReplaceOverwrites(t, open(t)) })
	t.Run("RelationKindsIsolated", func(t *testing.T) { testRelationKindsIsolated(t, open(t)) })
}

func bs(pairs []store.Pair) []string {
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.B.String())
	}
	sort.Strings(out)
	return out
}

func strs(ids ...id.EntityID) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		out = append(out, v.String())
	}
	sort.Strings(out)
	return out
}

func testEntityInsertFind(t *testing.T, b store.Backend) {
	ctx := context.Background()
	triggers := b.Triggers()

	tr := &model.Trigger{Name: "T1"}
	tid, err := triggers.Insert(ctx, tr)
	require.NoError(t, err)
	assert.False(t, tid.IsZero())
	assert.Equal(t, tid, tr.ID)

	got, err := triggers.FindByID(ctx, tid)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "T1", got.Name)
	assert.Equal(t, tid, got.ID)

	got, err = triggers.FindOne(ctx, store.Filter{"name": "T1"})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tid, got.ID)

	missing, err := triggers.FindByID(ctx, id.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	missing, err = triggers.FindOne(ctx, store.Filter{"name": "nope"})
	require.NoError(t, err)
	assert.Nil(t, missing)

	preset := id.New()
	pid, err := triggers.Insert(ctx, &model.Trigger{ID: preset, Name: "T2"})
	require.NoError(t, err)
	assert.Equal(t, preset, pid)
}

func testEntityFilterPage(t *testing.T, b store.Backend) {
	ctx := context.Background()
	events := b.Events()
	for i, svc := range []string{"a", "a", "b", "a", "b"} {
		_, err := events.Insert(ctx, &model.Event{
			ServiceID:      svc,
			MicroserviceID: "m",
			FunctionID:     []string{"f1", "f2"}[i%2],
			EventType:      "EncryptStart",
			Timestamp:      model.Now(),
		})
		require.NoError(t, err)
	}

	all, err := events.FindAll(ctx, nil, store.Page{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	as, err := events.FindAll(ctx, store.Filter{"service_id": "a"}, store.Page{})
	require.NoError(t, err)
	assert.Len(t, as, 3)

	af1, err := events.FindAll(ctx, store.Filter{"service_id": "a", "function_id": "f1"}, store.Page{})
	require.NoError(t, err)
	assert.Len(t, af1, 2)

	page, err := events.FindAll(ctx, store.Filter{"service_id": "a"}, store.Page{Limit: 2, Skip: 2})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	page, err = events.FindAll(ctx, nil, store.Page{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page, 2)

	none, err := events.FindAll(ctx, store.Filter{"service_id": "zzz"}, store.Page{})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func testEntityUpdate(t *testing.T, b store.Backend) {
	ctx := context.Background()
	events := b.Events()
	eid, err := events.Insert(ctx, &model.Event{
		ServiceID: "svc", MicroserviceID: "ms", FunctionID: "fn",
		EventType: "EncryptStart", Timestamp: model.Now(),
	})
	require.NoError(t, err)

	updated, err := events.Update(ctx, eid, map[string]any{"function_id": "fn2", "payload": map[string]any{"size": 3}})
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "fn2", updated.FunctionID)
	assert.Equal(t, "svc", updated.ServiceID)
	assert.Equal(t, eid, updated.ID)

	again, err := events.FindByID(ctx, eid)
	require.NoError(t, err)
	assert.Equal(t, "fn2", again.FunctionID)

	missing, err := events.Update(ctx, id.New(), map[string]any{"function_id": "x"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testEntityDelete(t *testing.T, b store.Backend) {
	ctx := context.Background()
	types := b.EventTypes()
	a, err := types.Insert(ctx, &model.EventType{EventType: "A", Timestamp: model.Now()})
	require.NoError(t, err)
	c, err := types.Insert(ctx, &model.EventType{EventType: "C", Timestamp: model.Now()})
	require.NoError(t, err)

	ok, err := types.Delete(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = types.Delete(ctx, a)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := types.FindByID(ctx, c)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "C", got.EventType)

	all, err := types.FindAll(ctx, nil, store.Page{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testRuleRoundTrip(t *testing.T, b store.Backend) {
	ctx := context.Background()
	rule := &model.Rule{
		Target: "mictlanx.get",
		Parameters: map[string]model.Parameter{
			"bucket_id": {Type: "string", Description: "source bucket"},
			"key":       {Type: "string", Description: "object key"},
			"sink_path": {Type: "string", Description: "local path"},
		},
	}
	rid, err := b.Rules().Insert(ctx, rule)
	require.NoError(t, err)

	got, err := b.Rules().FindByID(ctx, rid)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rule.Target, got.Target)
	assert.Equal(t, rule.Parameters, got.Parameters)
}

func testLinkIdempotent(t *testing.T, b store.Backend) {
	ctx := context.Background()
	rel := b.Relations(store.EventTypeTriggers)
	a, x := id.New(), id.New()

	created, err := rel.Link(ctx, a, x)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = rel.Link(ctx, a, x)
	require.NoError(t, err)
	assert.False(t, created)

	pairs, err := rel.ListByA(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, strs(x), bs(pairs))

	byB, err := rel.ListByB(ctx, x)
	require.NoError(t, err)
	require.Len(t, byB, 1)
	assert.Equal(t, a, byB[0].A)
}

func testUnlinkIdempotent(t *testing.T, b store.Backend) {
	ctx := context.Background()
	rel := b.Relations(store.TriggerRules)
	a, x := id.New(), id.New()

	removed, err := rel.Unlink(ctx, a, x)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = rel.Link(ctx, a, x)
	require.NoError(t, err)
	removed, err = rel.Unlink(ctx, a, x)
	require.NoError(t, err)
	assert.True(t, removed)

	pairs, err := rel.ListByA(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func testReplaceOverwrites(t *testing.T, b store.Backend) {
	ctx := context.Background()
	rel := b.Relations(store.EventTypeTriggers)
	a, other := id.New(), id.New()
	b1, b2, b3 := id.New(), id.New(), id.New()

	_, err := rel.Link(ctx, a, b3)
	require.NoError(t, err)
	_, err = rel.Link(ctx, other, b3)
	require.NoError(t, err)

	require.NoError(t, rel.ReplaceAllForA(ctx, a, []id.EntityID{b1, b2, b1}))
	pairs, err := rel.ListByA(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, strs(b1, b2), bs(pairs))

	untouched, err := rel.ListByA(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, strs(b3), bs(untouched))

	require.NoError(t, rel.ReplaceAllForA(ctx, a, nil))
	pairs, err = rel.ListByA(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, pairs)
}

func testRelationKindsIsolated(t *testing.T, b store.Backend) {
	ctx := context.Background()
	a, x := id.New(), id.New()
	_, err := b.Relations(store.TriggerChildren).Link(ctx, a, x)
	require.NoError(t, err)

	for _, k := range []store.RelationKind{store.EventTypeTriggers, store.TriggerRules} {
		pairs, err := b.Relations(k).ListByA(ctx, a)
		require.NoError(t, err)
		assert.Empty(t, pairs, "kind %s", k)
	}
}

// AssertRepositoryError checks that err is a storage failure.
func AssertRepositoryError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindRepository), "want repository error, got %v", err)
}
