package api

import (
	"net/http"
)

type triggerRequest struct {
	Name string `json:"name"`
}

// POST /api/v1/triggers
func (h *Handler) createTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.graph.CreateTrigger(r.Context(), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GET /api/v1/triggers
func (h *Handler) listTriggers(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	triggers, err := h.graph.ListTriggers(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, triggers)
}

// GET /api/v1/triggers/{name}
func (h *Handler) getTrigger(w http.ResponseWriter, r *http.Request) {
	t, err := h.graph.GetTriggerByName(r.Context(), r.PathValue("name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// PUT /api/v1/triggers/{name}: rename.
func (h *Handler) renameTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.graph.RenameTrigger(r.Context(), r.PathValue("name"), req.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// DELETE /api/v1/triggers/{name}
func (h *Handler) deleteTrigger(w http.ResponseWriter, r *http.Request) {
	if err := h.graph.DeleteTrigger(r.Context(), r.PathValue("name")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/triggers/{id}/cascade
func (h *Handler) cascadeTrigger(w http.ResponseWriter, r *http.Request) {
	tid, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	plan, err := h.graph.Cascade(r.Context(), tid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}
