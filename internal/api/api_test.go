package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shieldx/shieldx/internal/api"
	"github.com/shieldx/shieldx/internal/config"
	"github.com/shieldx/shieldx/internal/engine"
	"github.com/shieldx/shieldx/internal/graph"
	"github.com/shieldx/shieldx/internal/ingest"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
	"github.com/shieldx/shieldx/internal/store/memstore"
	"github.com/shieldx/shieldx/internal/target"
)

type server struct {
	t *testing.T
	h http.Handler
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newServer(t *testing.T) *server {
	b := memstore.New()
	return newServerWith(t, b, b, nil)
}

func newServerWith(t *testing.T, b store.Backend, p api.Pinger, act api.Activator) *server {
	g := graph.New(b, target.Builtin(), quiet())
	svc := ingest.New(b, quiet())
	return &server{t: t, h: api.New(g, svc, p, act, quiet())}
}

func (s *server) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var r io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(v)
	default:
		raw, err := json.Marshal(v)
		require.NoError(s.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *server) createID(path string, body any) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, path, body)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode[map[string]any](s.t, rec)
	if v, ok := out["id"].(string); ok {
		return v
	}
	return out["event_id"].(string)
}

func getRule() map[string]any {
	return map[string]any{
		"target": "mictlanx.get",
		"parameters": map[string]any{
			"bucket_id": map[string]string{"type": "string", "description": "bucket"},
			"key":       map[string]string{"type": "string", "description": "key"},
			"sink_path": map[string]string{"type": "string", "description": "path"},
		},
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode[map[string]any](t, rec)["status"])
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

type fullQueue struct{}

func (fullQueue) QueueUtilization() float64 { return 0.95 }

func (fullQueue) ProcessSync(context.Context, *model.Event) (*engine.Result, error) {
	return nil, engine.ErrQueueFull
}

func TestReadyzReportsDependencies(t *testing.T) {
	b := memstore.New()
	s := newServerWith(t, b, downStore{}, nil)
	rec := s.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", decode[map[string]any](t, rec)["status"])

	s = newServerWith(t, b, b, fullQueue{})
	rec = s.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "overloaded", decode[map[string]any](t, rec)["status"])
}

func TestEventTypeRoutes(t *testing.T) {
	s := newServer(t)
	etID := s.createID("/api/v1/event-types", map[string]string{"event_type": "EncryptStart"})

	rec := s.do(http.MethodPost, "/api/v1/event-types", map[string]string{"event_type": "EncryptStart"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/event-types/"+etID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "EncryptStart", decode[map[string]any](t, rec)["event_type"])

	rec = s.do(http.MethodGet, "/api/v1/event-types", nil)
	assert.Len(t, decode[[]any](t, rec), 1)

	rec = s.do(http.MethodGet, "/api/v1/event-types/not-an-id", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/event-types/"+etID, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/v1/event-types/"+etID, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/event-types/"+etID, nil).Code)
}

func TestCreateEventUnknownType(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodPost, "/api/v1/events", map[string]string{"service_id": "s", "event_type": "Ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "event type 'Ghost' not found", decode[map[string]string](t, rec)["error"])

	rec = s.do(http.MethodGet, "/api/v1/events", nil)
	assert.Empty(t, decode[[]any](t, rec))
}

func TestEventRoutes(t *testing.T) {
	s := newServer(t)
	s.createID("/api/v1/event-types", map[string]string{"event_type": "EncryptStart"})
	s.createID("/api/v1/event-types", map[string]string{"event_type": "EncryptEnd"})

	var ids []string
	for _, svc := range []string{"a", "a", "b"} {
		rec := s.do(http.MethodPost, "/api/v1/events", map[string]any{
			"service_id": svc, "microservice_id": "m-" + svc, "function_id": "f",
			"event_type": "EncryptStart", "timestamp": 1714000000,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		body := decode[map[string]string](t, rec)
		assert.Equal(t, "Event created", body["message"])
		ids = append(ids, body["event_id"])
	}

	assert.Len(t, decode[[]any](t, s.do(http.MethodGet, "/api/v1/events", nil)), 3)
	assert.Len(t, decode[[]any](t, s.do(http.MethodGet, "/api/v1/events?service_id=a", nil)), 2)
	assert.Len(t, decode[[]any](t, s.do(http.MethodGet, "/api/v1/events?limit=1&skip=2", nil)), 1)
	assert.Len(t, decode[[]any](t, s.do(http.MethodGet, "/api/v1/events/service/b", nil)), 1)
	assert.Len(t, decode[[]any](t, s.do(http.MethodGet, "/api/v1/events/microservice/m-a", nil)), 2)
	assert.Len(t, decode[[]any](t, s.do(http.MethodGet, "/api/v1/events/function/f", nil)), 3)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/v1/events?limit=zero", nil).Code)

	rec := s.do(http.MethodPut, "/api/v1/events/"+ids[0], map[string]string{"event_type": "EncryptEnd"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ev := decode[map[string]any](t, rec)
	assert.Equal(t, "EncryptEnd", ev["event_type"])
	assert.Equal(t, "a", ev["service_id"])

	rec = s.do(http.MethodPut, "/api/v1/events/"+ids[0], map[string]string{"event_type": "Ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodPut, "/api/v1/events/"+ids[0], map[string]string{"event_type": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/events/"+ids[1], nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/events/"+ids[1], nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/v1/events/"+ids[1], nil).Code)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/events", "{not json").Code)
}

func TestCreateEventSync(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b := memstore.New()
	g := graph.New(b, target.Builtin(), quiet())
	eng := engine.New(ctx, g, target.Builtin(), config.EngineConf{Workers: 1, QueueDepth: 4, TimeoutMs: 2000}, quiet())
	t.Cleanup(eng.Shutdown)
	s := &server{t: t, h: api.New(g, ingest.New(b, quiet()), b, eng, quiet())}

	etID := s.createID("/api/v1/event-types", map[string]string{"event_type": "EncryptStart"})
	t1 := decode[map[string]any](t, s.do(http.MethodPost, "/api/v1/triggers", map[string]string{"name": "T1"}))["id"].(string)
	s.do(http.MethodPost, "/api/v1/event-types/"+etID+"/triggers/"+t1, nil)
	s.createID("/api/v1/triggers/"+t1+"/rules", getRule())

	rec := s.do(http.MethodPost, "/api/v1/events?sync=true", map[string]any{
		"service_id": "svc", "microservice_id": "ms", "function_id": "fn", "event_type": "EncryptStart",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		EventID    string         `json:"event_id"`
		Activation *engine.Result `json:"activation"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.NotNil(t, out.Activation)
	assert.Equal(t, out.EventID, out.Activation.EventID.String())
	assert.Equal(t, []string{"T1"}, out.Activation.Triggers)
	require.Len(t, out.Activation.Rules, 1)
	assert.Equal(t, "mictlanx.get", out.Activation.Rules[0].Target)
	assert.True(t, out.Activation.Rules[0].Known)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/events?sync=maybe", map[string]any{"event_type": "EncryptStart"}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/v1/events?sync=true", map[string]any{"event_type": "Ghost"}).Code)
}

func TestCreateEventSyncQueueFull(t *testing.T) {
	b := memstore.New()
	s := newServerWith(t, b, b, fullQueue{})
	s.createID("/api/v1/event-types", map[string]string{"event_type": "EncryptStart"})

	rec := s.do(http.MethodPost, "/api/v1/events?sync=1", map[string]any{"event_type": "EncryptStart"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode[map[string]any](t, rec)
	assert.NotEmpty(t, body["event_id"])
	assert.Contains(t, body["activation_error"], "activation queue full")
	assert.Len(t, decode[[]any](t, s.do(http.MethodGet, "/api/v1/events", nil)), 1)

	plain := newServer(t)
	plain.createID("/api/v1/event-types", map[string]string{"event_type": "EncryptStart"})
	assert.Equal(t, http.StatusBadRequest, plain.do(http.MethodPost, "/api/v1/events?sync=true", map[string]any{"event_type": "EncryptStart"}).Code)
}

func TestTriggerRoutes(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodPost, "/api/v1/triggers", map[string]string{"name": "X"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "X", decode[map[string]any](t, rec)["name"])

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/api/v1/triggers", map[string]string{"name": "X"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/triggers", map[string]string{"name": " "}).Code)

	s.do(http.MethodPost, "/api/v1/triggers", map[string]string{"name": "Y"})
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPut, "/api/v1/triggers/X", map[string]string{"name": "Y"}).Code)

	rec = s.do(http.MethodPut, "/api/v1/triggers/X", map[string]string{"name": "Z"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/triggers/X", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/triggers/Z", nil).Code)
	assert.Len(t, decode[[]any](t, s.do(http.MethodGet, "/api/v1/triggers", nil)), 2)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/triggers/Z", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/api/v1/triggers/Z", nil).Code)
	assert.Equal(t, http.StatusCreated, s.do(http.MethodPost, "/api/v1/triggers", map[string]string{"name": "X"}).Code)
}

func TestRuleRoutes(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodPost, "/api/v1/rules", map[string]any{"target": "mictlanx.get", "parameters": map[string]any{}})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	msg := decode[map[string]string](t, rec)["error"]
	for _, p := range []string{"bucket_id", "key", "sink_path"} {
		assert.Contains(t, msg, p)
	}

	rid := s.createID("/api/v1/rules", getRule())
	rec = s.do(http.MethodGet, "/api/v1/rules/"+rid, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "mictlanx.get", decode[map[string]any](t, rec)["target"])

	updated := map[string]any{
		"target":     "custom.noop",
		"parameters": map[string]any{"n": map[string]string{"type": "int", "description": "count"}},
	}
	rec = s.do(http.MethodPut, "/api/v1/rules/"+rid, updated)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "custom.noop", decode[map[string]any](t, rec)["target"])

	bad := map[string]any{
		"target":     "custom.noop",
		"parameters": map[string]any{"n": map[string]string{"type": "list"}},
	}
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/api/v1/rules/"+rid, bad).Code)

	assert.Len(t, decode[[]any](t, s.do(http.MethodGet, "/api/v1/rules", nil)), 1)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/rules/"+rid, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/rules/"+rid, nil).Code)

	targets := decode[[]map[string]any](t, s.do(http.MethodGet, "/api/v1/targets", nil))
	assert.Len(t, targets, 4)
}

func TestEventTypeTriggerLinks(t *testing.T) {
	s := newServer(t)
	etID := s.createID("/api/v1/event-types", map[string]string{"event_type": "EncryptStart"})
	rec := s.do(http.MethodPost, "/api/v1/triggers", map[string]string{"name": "T1"})
	t1 := decode[map[string]any](t, rec)["id"].(string)

	path := "/api/v1/event-types/" + etID + "/triggers"
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, path+"/"+t1, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, path+"/"+t1, nil).Code)

	links := decode[[]map[string]string](t, s.do(http.MethodGet, path, nil))
	require.Len(t, links, 1)
	assert.Equal(t, etID, links[0]["event_type_id"])
	assert.Equal(t, t1, links[0]["trigger_id"])

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, path+"/"+t1, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, path+"/"+t1, nil).Code)
	assert.Empty(t, decode[[]any](t, s.do(http.MethodGet, path, nil)))

	rec = s.do(http.MethodPost, "/api/v1/triggers", map[string]string{"name": "T2"})
	t2 := decode[map[string]any](t, rec)["id"].(string)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPut, path, []string{t1, t2}).Code)
	assert.Len(t, decode[[]any](t, s.do(http.MethodGet, path, nil)), 2)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPut, path, []string{t2}).Code)
	assert.Len(t, decode[[]any](t, s.do(http.MethodGet, path, nil)), 1)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, path, []string{"nope"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, path+"/nope", nil).Code)
}

func TestTriggerRulesAndChildren(t *testing.T) {
	s := newServer(t)
	parent := decode[map[string]any](t, s.do(http.MethodPost, "/api/v1/triggers", map[string]string{"name": "P"}))["id"].(string)
	child := decode[map[string]any](t, s.do(http.MethodPost, "/api/v1/triggers", map[string]string{"name": "C"}))["id"].(string)

	rec := s.do(http.MethodPost, "/api/v1/triggers/"+child+"/rules", getRule())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "Rule created and linked", body["message"])
	rid := body["id"]

	rules := decode[[]map[string]string](t, s.do(http.MethodGet, "/api/v1/triggers/"+child+"/rules", nil))
	require.Len(t, rules, 1)
	assert.Equal(t, rid, rules[0]["rule_id"])

	missing := "0123456789abcdef01234567"
	rec = s.do(http.MethodPost, "/api/v1/triggers/"+missing+"/rules", getRule())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/api/v1/triggers/"+parent+"/children/"+child, nil).Code)
	children := decode[[]map[string]string](t, s.do(http.MethodGet, "/api/v1/triggers/"+parent+"/children", nil))
	require.Len(t, children, 1)
	assert.Equal(t, child, children[0]["trigger_child_id"])
	parents := decode[[]map[string]string](t, s.do(http.MethodGet, "/api/v1/triggers/"+child+"/parents", nil))
	require.Len(t, parents, 1)
	assert.Equal(t, parent, parents[0]["trigger_parent_id"])

	cascade := decode[map[string][]any](t, s.do(http.MethodGet, "/api/v1/triggers/"+parent+"/cascade", nil))
	assert.Len(t, cascade["triggers"], 2)
	assert.Len(t, cascade["activations"], 1)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/triggers/"+child+"/rules/"+rid, nil).Code)
	assert.Empty(t, decode[[]any](t, s.do(http.MethodGet, "/api/v1/triggers/"+child+"/rules", nil)))
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/api/v1/triggers/"+child+"/rules/"+rid, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, "/api/v1/triggers/"+parent+"/children/"+child, nil).Code)
	assert.Empty(t, decode[[]any](t, s.do(http.MethodGet, "/api/v1/triggers/"+child+"/parents", nil)))
}

func TestEventTypePlan(t *testing.T) {
	s := newServer(t)
	etID := s.createID("/api/v1/event-types", map[string]string{"event_type": "EncryptStart"})
	t1 := decode[map[string]any](t, s.do(http.MethodPost, "/api/v1/triggers", map[string]string{"name": "T1"}))["id"].(string)
	s.do(http.MethodPost, "/api/v1/event-types/"+etID+"/triggers/"+t1, nil)
	s.createID("/api/v1/triggers/"+t1+"/rules", getRule())

	rec := s.do(http.MethodGet, "/api/v1/event-types/"+etID+"/plan", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	plan := decode[map[string][]map[string]any](t, rec)
	require.Len(t, plan["triggers"], 1)
	assert.Equal(t, "T1", plan["triggers"][0]["name"])
	require.Len(t, plan["activations"], 1)
	assert.Empty(t, plan["cycles"])

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/event-types/0123456789abcdef01234567/plan", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newServer(t)
	s.do(http.MethodGet, "/api/v1/triggers", nil)
	rec := s.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shieldx_http_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v2/nothing", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, s.do(http.MethodPatch, "/api/v1/triggers", nil).Code)
}
