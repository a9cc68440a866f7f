// Package api is the HTTP surface over the graph engine and event ingestion.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shieldx/shieldx/internal/engine"
	"github.com/shieldx/shieldx/internal/graph"
	"github.com/shieldx/shieldx/internal/ingest"
	"github.com/shieldx/shieldx/internal/metrics"
	"github.com/shieldx/shieldx/internal/model"
)

const prefix = "/api/v1"

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Activator evaluates rule activations for ingested events.
type Activator interface {
	// QueueUtilization reports how full the activation queue is, from 0 to 1.
	QueueUtilization() float64
	ProcessSync(ctx context.Context, ev *model.Event) (*engine.Result, error)
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	graph   *graph.Engine
	events  *ingest.Service
	store     Pinger
	activator Activator
	log       *slog.Logger
	mux     *http.ServeMux
}

// New creates an HTTP handler and registers all routes. act may be nil
// when no activation engine runs.
func New(g *graph.Engine, events *ingest.Service, store Pinger, act Activator, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{graph: g, events: events, store: store, activator: act, log: log, mux: http.NewServeMux()}

	h.route("POST /event-types", h.createEventType)
	h.route("GET /event-types", h.listEventTypes)
	h.route("GET /event-types/{id}", h.getEventType)
	h.route("DELETE /event-types/{id}", h.deleteEventType)
	h.route("GET /event-types/{id}/plan", h.planEventType)

	h.route("POST /events", h.createEvent)
	h.route("GET /events", h.listEvents)
	h.route("GET /events/service/{value}", h.listEventsBy("service_id"))
	h.route("GET /events/microservice/{value}", h.listEventsBy("microservice_id"))
	h.route("GET /events/function/{value}", h.listEventsBy("function_id"))
	h.route("GET /events/{id}", h.getEvent)
	h.route("PUT /events/{id}", h.updateEvent)
	h.route("DELETE /events/{id}", h.deleteEvent)

	h.route("POST /triggers", h.createTrigger)
	h.route("GET /triggers", h.listTriggers)
	h.route("GET /triggers/{name}", h.getTrigger)
	h.route("PUT /triggers/{name}", h.renameTrigger)
	h.route("DELETE /triggers/{name}", h.deleteTrigger)
	h.route("GET /triggers/{id}/cascade", h.cascadeTrigger)

	h.route("POST /rules", h.createRule)
	h.route("GET /rules", h.listRules)
	h.route("GET /rules/{id}", h.getRule)
	h.route("PUT /rules/{id}", h.updateRule)
	h.route("DELETE /rules/{id}", h.deleteRule)
	h.route("GET /targets", h.listTargets)

	h.registerRelations()

	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.log, h.mux)
}

// route registers fn under the versioned prefix. pattern is "METHOD /path".
func (h *Handler) route(pattern string, fn http.HandlerFunc) {
	method, path, _ := strings.Cut(pattern, " ")
	h.mux.HandleFunc(method+" "+prefix+path, fn)
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the store is unreachable or the activation queue is
// more than 80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.log.Warn("readyz.store.unreachable", "err", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "store_unavailable",
		})
		return
	}
	var util float64
	if h.activator != nil {
		util = h.activator.QueueUtilization()
		metrics.QueueUtilization.Set(util)
	}
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"queue_utilization": util,
	})
}
