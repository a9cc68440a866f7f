package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldx/shieldx/internal/config"
	"github.com/shieldx/shieldx/internal/engine"
	"github.com/shieldx/shieldx/internal/graph"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
	"github.com/shieldx/shieldx/internal/store/memstore"
	"github.com/shieldx/shieldx/internal/target"
)

var conf = config.EngineConf{Workers: 2, QueueDepth: 8, TimeoutMs: 2000}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// seed builds EncryptStart -> T1 -> T2 with one rule on each trigger.
func seed(t *testing.T) *graph.Engine {
	t.Helper()
	ctx := context.Background()
	b := memstore.New()
	g := graph.New(b, target.Builtin(), quiet())

	et, err := b.EventTypes().Insert(ctx, &model.EventType{EventType: "EncryptStart", Timestamp: model.Now()})
	require.NoError(t, err)
	t1, err := g.CreateTrigger(ctx, "T1")
	require.NoError(t, err)
	t2, err := g.CreateTrigger(ctx, "T2")
	require.NoError(t, err)
	_, err = g.Link(ctx, store.EventTypeTriggers, et, t1.ID)
	require.NoError(t, err)
	_, err = g.Link(ctx, store.TriggerChildren, t1.ID, t2.ID)
	require.NoError(t, err)

	_, err = g.CreateAndLink(ctx, t1.ID, &model.Rule{Target: "mictlanx.get", Parameters: map[string]model.Parameter{
		"bucket_id": {Type: "string"}, "key": {Type: "string"}, "sink_path": {Type: "string"},
	}})
	require.NoError(t, err)
	_, err = g.CreateAndLink(ctx, t2.ID, &model.Rule{Target: "custom.notify", Parameters: map[string]model.Parameter{}})
	require.NoError(t, err)
	return g
}

func TestProcessSync(t *testing.T) {
	g := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := engine.New(ctx, g, target.Builtin(), conf, quiet())
	defer e.Shutdown()

	res, err := e.ProcessSync(ctx, &model.Event{EventType: "EncryptStart"})
	require.NoError(t, err)
	assert.Equal(t, []string{"T1", "T2"}, res.Triggers)
	require.Len(t, res.Rules, 2)
	assert.Equal(t, "mictlanx.get", res.Rules[0].Target)
	assert.True(t, res.Rules[0].Known)
	assert.Equal(t, "custom.notify", res.Rules[1].Target)
	assert.False(t, res.Rules[1].Known)
	assert.Empty(t, res.Error)
}

func TestUnknownEventTypeActivatesNothing(t *testing.T) {
	g := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := engine.New(ctx, g, target.Builtin(), conf, quiet())
	defer e.Shutdown()

	res, err := e.ProcessSync(ctx, &model.Event{EventType: "Other"})
	require.NoError(t, err)
	assert.Empty(t, res.Triggers)
	assert.Empty(t, res.Rules)
}

func TestNotifyRunsHooks(t *testing.T) {
	g := seed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	results := make(chan *engine.Result, 1)
	e := engine.New(ctx, g, target.Builtin(), conf, quiet(), engine.OnActivation(func(r *engine.Result) { results <- r }))
	defer e.Shutdown()

	e.Notify(&model.Event{EventType: "EncryptStart"})
	select {
	case r := <-results:
		assert.Len(t, r.Rules, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("activation not observed")
	}
}

// blockingPlanner holds every worker until release is closed.
type blockingPlanner struct {
	started chan struct{}
	release chan struct{}
}

func (p *blockingPlanner) PlanForEventType(ctx context.Context, name string) (*graph.Plan, error) {
	p.started <- struct{}{}
	<-p.release
	return nil, errors.New("planner unavailable")
}

func TestQueueFullDrops(t *testing.T) {
	p := &blockingPlanner{started: make(chan struct{}, 1), release: make(chan struct{})}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := engine.New(ctx, p, target.Builtin(), config.EngineConf{Workers: 1, QueueDepth: 1, TimeoutMs: 1000}, quiet())

	require.True(t, e.ProcessAsync(&model.Event{EventType: "a"}))
	<-p.started // worker busy
	require.True(t, e.ProcessAsync(&model.Event{EventType: "b"}))
	assert.Equal(t, 1.0, e.QueueUtilization())
	assert.False(t, e.ProcessAsync(&model.Event{EventType: "c"}))

	_, err := e.ProcessSync(ctx, &model.Event{EventType: "d"})
	assert.ErrorIs(t, err, engine.ErrQueueFull)

	go func() {
		for range p.started {
		}
	}()
	close(p.release)
	e.Shutdown()
	assert.False(t, e.ProcessAsync(&model.Event{EventType: "e"}))
}

func TestPlannerErrorIsReported(t *testing.T) {
	p := &blockingPlanner{started: make(chan struct{}, 1), release: make(chan struct{})}
	close(p.release)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e := engine.New(ctx, p, target.Builtin(), conf, quiet())
	defer e.Shutdown()

	res, err := e.ProcessSync(ctx, &model.Event{EventType: "a"})
	require.NoError(t, err)
	assert.Equal(t, "planner unavailable", res.Error)
}
