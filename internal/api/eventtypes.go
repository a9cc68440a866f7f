package api

import (
	"net/http"

	"github.com/shieldx/shieldx/internal/model"
)

// POST /api/v1/event-types
func (h *Handler) createEventType(w http.ResponseWriter, r *http.Request) {
	var et model.EventType
	if err := decodeBody(w, r, &et); err != nil {
		h.fail(w, r, err)
		return
	}
	etID, err := h.events.CreateEventType(r.Context(), &et)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Event type created", ID: etID})
}

// GET /api/v1/event-types
func (h *Handler) listEventTypes(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	types, err := h.events.ListEventTypes(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

// GET /api/v1/event-types/{id}
func (h *Handler) getEventType(w http.ResponseWriter, r *http.Request) {
	etID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	et, err := h.events.GetEventType(r.Context(), etID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, et)
}

// DELETE /api/v1/event-types/{id}
func (h *Handler) deleteEventType(w http.ResponseWriter, r *http.Request) {
	etID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.events.DeleteEventType(r.Context(), etID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/event-types/{id}/plan: triggers and rules an event of this
// type would activate.
func (h *Handler) planEventType(w http.ResponseWriter, r *http.Request) {
	etID, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	plan, err := h.graph.Plan(r.Context(), etID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}
