package ingest_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/ingest"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
	"github.com/shieldx/shieldx/internal/store/memstore"
)

type recorder struct {
	mu     sync.Mutex
	events []*model.Event
}

func (r *recorder) Notify(ev *model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func newService(t *testing.T) (*ingest.Service, *recorder) {
	t.Helper()
	rec := &recorder{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ingest.New(memstore.New(), log, ingest.WithNotifier(rec)), rec
}

func sample(eventType string) *model.Event {
	return &model.Event{
		ServiceID:      "svc",
		MicroserviceID: "ms",
		FunctionID:     "fn",
		EventType:      eventType,
		Payload:        map[string]any{"bytes": 42},
	}
}

func TestCreateEventRequiresType(t *testing.T) {
	s, rec := newService(t)
	ctx := context.Background()

	_, err := s.CreateEvent(ctx, sample("Ghost"))
	require.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.EqualError(t, err, "event type 'Ghost' not found")

	all, err := s.ListEvents(ctx, model.EventFilter{}, store.Page{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, rec.events)
}

func TestCreateEvent(t *testing.T) {
	s, rec := newService(t)
	ctx := context.Background()
	_, err := s.CreateEventType(ctx, &model.EventType{EventType: "EncryptStart"})
	require.NoError(t, err)

	eid, err := s.CreateEvent(ctx, sample("EncryptStart"))
	require.NoError(t, err)

	got, err := s.GetEvent(ctx, eid)
	require.NoError(t, err)
	assert.Equal(t, "EncryptStart", got.EventType)
	assert.False(t, got.Timestamp.IsZero())
	require.Len(t, rec.events, 1)
	assert.Equal(t, eid, rec.events[0].ID)
}

func TestRecordSkipsNotifier(t *testing.T) {
	s, rec := newService(t)
	ctx := context.Background()
	_, err := s.CreateEventType(ctx, &model.EventType{EventType: "EncryptStart"})
	require.NoError(t, err)

	ev := sample("EncryptStart")
	eid, err := s.Record(ctx, ev)
	require.NoError(t, err)
	assert.Equal(t, eid, ev.ID)
	assert.Empty(t, rec.events)

	_, err = s.Record(ctx, sample(""))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestDuplicateEventsAreKept(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	_, err := s.CreateEventType(ctx, &model.EventType{EventType: "EncryptStart"})
	require.NoError(t, err)

	ts := model.Now()
	for i := 0; i < 2; i++ {
		ev := sample("EncryptStart")
		ev.Timestamp = ts
		_, err := s.CreateEvent(ctx, ev)
		require.NoError(t, err)
	}
	all, err := s.ListEvents(ctx, model.EventFilter{}, store.Page{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestListEventsFilters(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	_, err := s.CreateEventType(ctx, &model.EventType{EventType: "E"})
	require.NoError(t, err)
	for _, c := range []struct{ svc, ms, fn string }{
		{"s1", "m1", "f1"}, {"s1", "m2", "f1"}, {"s2", "m1", "f2"},
	} {
		_, err := s.CreateEvent(ctx, &model.Event{ServiceID: c.svc, MicroserviceID: c.ms, FunctionID: c.fn, EventType: "E"})
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		filter model.EventFilter
		want   int
	}{
		{"none", model.EventFilter{}, 3},
		{"service", model.EventFilter{ServiceID: "s1"}, 2},
		{"service and microservice", model.EventFilter{ServiceID: "s1", MicroserviceID: "m1"}, 1},
		{"function", model.EventFilter{FunctionID: "f2"}, 1},
		{"no match", model.EventFilter{ServiceID: "s3"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListEvents(ctx, tt.filter, store.Page{})
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestUpdateEvent(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	_, err := s.CreateEventType(ctx, &model.EventType{EventType: "EncryptStart"})
	require.NoError(t, err)
	eid, err := s.CreateEvent(ctx, sample("EncryptStart"))
	require.NoError(t, err)

	fn := "fn2"
	got, err := s.UpdateEvent(ctx, eid, model.EventUpdate{FunctionID: &fn})
	require.NoError(t, err)
	assert.Equal(t, "fn2", got.FunctionID)
	assert.Equal(t, "svc", got.ServiceID)

	ghost := "Ghost"
	_, err = s.UpdateEvent(ctx, eid, model.EventUpdate{EventType: &ghost})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	blank := " "
	_, err = s.UpdateEvent(ctx, eid, model.EventUpdate{EventType: &blank})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)

	_, err = s.UpdateEvent(ctx, id.New(), model.EventUpdate{FunctionID: &fn})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestDeleteEvent(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	_, err := s.CreateEventType(ctx, &model.EventType{EventType: "EncryptStart"})
	require.NoError(t, err)
	eid, err := s.CreateEvent(ctx, sample("EncryptStart"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteEvent(ctx, eid))
	assert.True(t, apperr.Is(s.DeleteEvent(ctx, eid), apperr.KindNotFound))
}

func TestEventTypeLifecycle(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	etID, err := s.CreateEventType(ctx, &model.EventType{EventType: "EncryptStart"})
	require.NoError(t, err)
	_, err = s.CreateEventType(ctx, &model.EventType{EventType: "EncryptStart"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	_, err = s.CreateEventType(ctx, &model.EventType{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	got, err := s.GetEventType(ctx, etID)
	require.NoError(t, err)
	assert.Equal(t, "EncryptStart", got.EventType)

	require.NoError(t, s.DeleteEventType(ctx, etID))
	assert.True(t, apperr.Is(s.DeleteEventType(ctx, etID), apperr.KindNotFound))
	_, err = s.GetEventType(ctx, etID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
