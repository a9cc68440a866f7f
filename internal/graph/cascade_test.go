package graph_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/store"
)

func TestPlanFollowsChildrenAndRules(t *testing.T) {
	e, b := newEngine(t)
	ctx := context.Background()
	et := insertEventType(t, b, "EncryptStart")
	t1, err := e.CreateTrigger(ctx, "T1")
	require.NoError(t, err)
	t2, err := e.CreateTrigger(ctx, "T2")
	require.NoError(t, err)
	r1, err := e.CreateAndLink(ctx, t1.ID, getRule())
	require.NoError(t, err)
	r2, err := e.CreateAndLink(ctx, t2.ID, getRule())
	require.NoError(t, err)

	_, err = e.Link(ctx, store.EventTypeTriggers, et, t1.ID)
	require.NoError(t, err)
	_, err = e.Link(ctx, store.TriggerChildren, t1.ID, t2.ID)
	require.NoError(t, err)

	plan, err := e.Plan(ctx, et)
	require.NoError(t, err)
	require.Len(t, plan.Triggers, 2)
	assert.Equal(t, "T1", plan.Triggers[0].Name)
	assert.Equal(t, "T2", plan.Triggers[1].Name)
	require.Len(t, plan.Activations, 2)
	assert.Equal(t, r1, plan.Activations[0].Rule.ID)
	assert.Equal(t, t1.ID, plan.Activations[0].TriggerID)
	assert.Equal(t, r2, plan.Activations[1].Rule.ID)
	assert.Empty(t, plan.Cycles)

	byName, err := e.PlanForEventType(ctx, "EncryptStart")
	require.NoError(t, err)
	assert.Len(t, byName.Triggers, 2)
}

// Cycles are accepted at link time and reported by the walk.
func TestCycleIsFlaggedNotRejected(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	t1, err := e.CreateTrigger(ctx, "T1")
	require.NoError(t, err)
	t2, err := e.CreateTrigger(ctx, "T2")
	require.NoError(t, err)

	_, err = e.Link(ctx, store.TriggerChildren, t1.ID, t2.ID)
	require.NoError(t, err)
	created, err := e.Link(ctx, store.TriggerChildren, t2.ID, t1.ID)
	require.NoError(t, err)
	assert.True(t, created)

	plan, err := e.Cascade(ctx, t1.ID)
	require.NoError(t, err)
	assert.Len(t, plan.Triggers, 2)
	require.Len(t, plan.Cycles, 1)
	assert.Equal(t, t2.ID, plan.Cycles[0].ParentID)
	assert.Equal(t, t1.ID, plan.Cycles[0].ChildID)
}

func TestDiamondExpandsOnce(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()
	top, _ := e.CreateTrigger(ctx, "top")
	left, _ := e.CreateTrigger(ctx, "left")
	right, _ := e.CreateTrigger(ctx, "right")
	bottom, _ := e.CreateTrigger(ctx, "bottom")
	for _, edge := range [][2]id.EntityID{{top.ID, left.ID}, {top.ID, right.ID}, {left.ID, bottom.ID}, {right.ID, bottom.ID}} {
		_, err := e.Link(ctx, store.TriggerChildren, edge[0], edge[1])
		require.NoError(t, err)
	}

	plan, err := e.Cascade(ctx, top.ID)
	require.NoError(t, err)
	assert.Len(t, plan.Triggers, 4)
	assert.Empty(t, plan.Cycles)
}

func TestPlanSkipsDanglingTriggers(t *testing.T) {
	e, b := newEngine(t)
	ctx := context.Background()
	et := insertEventType(t, b, "EncryptStart")
	gone, err := e.CreateTrigger(ctx, "gone")
	require.NoError(t, err)
	_, err = e.Link(ctx, store.EventTypeTriggers, et, gone.ID)
	require.NoError(t, err)
	require.NoError(t, e.DeleteTrigger(ctx, "gone"))

	plan, err := e.Plan(ctx, et)
	require.NoError(t, err)
	assert.Empty(t, plan.Triggers)
}

func TestPlanUnknownRoots(t *testing.T) {
	e, _ := newEngine(t)
	ctx := context.Background()

	_, err := e.Plan(ctx, id.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = e.Cascade(ctx, id.New())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	plan, err := e.PlanForEventType(ctx, "Ghost")
	require.NoError(t, err)
	assert.Empty(t, plan.Triggers)
}
