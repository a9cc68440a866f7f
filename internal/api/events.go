package api

import (
	"net/http"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/engine"
	"github.com/shieldx/shieldx/internal/model"
)

type eventCreated struct {
	Message string `json:"message"`
	EventID string `json:"event_id"`
}

type eventActivated struct {
	eventCreated
	Activation      *engine.Result `json:"activation,omitempty"`
	ActivationError string         `json:"activation_error,omitempty"`
}

// POST /api/v1/events[?sync=true]
// With sync the rule activations are evaluated before responding and
// returned with the event id.
func (h *Handler) createEvent(w http.ResponseWriter, r *http.Request) {
	sync, err := boolQuery(r, "sync")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sync && h.activator == nil {
		h.fail(w, r, apperr.Validation("synchronous activation is not available"))
		return
	}
	var ev model.Event
	if err := decodeBody(w, r, &ev); err != nil {
		h.fail(w, r, err)
		return
	}
	if !sync {
		eid, err := h.events.CreateEvent(r.Context(), &ev)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, eventCreated{Message: "Event created", EventID: eid.String()})
		return
	}

	eid, err := h.events.Record(r.Context(), &ev)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := eventActivated{eventCreated: eventCreated{Message: "Event created", EventID: eid.String()}}
	res, err := h.activator.ProcessSync(r.Context(), &ev)
	if err != nil {
		// The event is stored either way.
		h.log.Warn("http.activation.failed", "event_id", eid, "err", err)
		out.ActivationError = err.Error()
	} else {
		out.Activation = res
	}
	writeJSON(w, http.StatusCreated, out)
}

// GET /api/v1/events?service_id=&microservice_id=&function_id=&limit=&skip=
func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.writeEvents(w, r, model.EventFilter{
		ServiceID:      q.Get("service_id"),
		MicroserviceID: q.Get("microservice_id"),
		FunctionID:     q.Get("function_id"),
	})
}

// listEventsBy serves the /events/<field>/{value} shortcuts.
func (h *Handler) listEventsBy(field string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v := r.PathValue("value")
		var f model.EventFilter
		switch field {
		case "service_id":
			f.ServiceID = v
		case "microservice_id":
			f.MicroserviceID = v
		case "function_id":
			f.FunctionID = v
		}
		h.writeEvents(w, r, f)
	}
}

func (h *Handler) writeEvents(w http.ResponseWriter, r *http.Request, f model.EventFilter) {
	p, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	events, err := h.events.ListEvents(r.Context(), f, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// GET /api/v1/events/{id}
func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	eid, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	ev, err := h.events.GetEvent(r.Context(), eid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// PUT /api/v1/events/{id}: partial update.
func (h *Handler) updateEvent(w http.ResponseWriter, r *http.Request) {
	eid, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var u model.EventUpdate
	if err := decodeBody(w, r, &u); err != nil {
		h.fail(w, r, err)
		return
	}
	ev, err := h.events.UpdateEvent(r.Context(), eid, u)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// DELETE /api/v1/events/{id}
func (h *Handler) deleteEvent(w http.ResponseWriter, r *http.Request) {
	eid, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.events.DeleteEvent(r.Context(), eid); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
