package api

import (
	"net/http"

	"github.com/shieldx/shieldx/internal/model"
)

// POST /api/v1/rules
func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var rule model.Rule
	if err := decodeBody(w, r, &rule); err != nil {
		h.fail(w, r, err)
		return
	}
	rid, err := h.graph.CreateRule(r.Context(), &rule)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Rule created", ID: rid})
}

// GET /api/v1/rules
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rules, err := h.graph.ListRules(r.Context(), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

// GET /api/v1/rules/{id}
func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	rid, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rule, err := h.graph.GetRule(r.Context(), rid)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// PUT /api/v1/rules/{id}: full replacement, validated like a create.
func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	rid, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var rule model.Rule
	if err := decodeBody(w, r, &rule); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.graph.UpdateRule(r.Context(), rid, &rule)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DELETE /api/v1/rules/{id}
func (h *Handler) deleteRule(w http.ResponseWriter, r *http.Request) {
	rid, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.graph.DeleteRule(r.Context(), rid); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type targetResponse struct {
	Name     string   `json:"name"`
	Required []string `json:"required"`
}

// GET /api/v1/targets
func (h *Handler) listTargets(w http.ResponseWriter, r *http.Request) {
	reg := h.graph.Targets()
	out := make([]targetResponse, 0)
	for _, name := range reg.Names() {
		t, _ := reg.Get(name)
		out = append(out, targetResponse{Name: t.Name, Required: t.Required})
	}
	writeJSON(w, http.StatusOK, out)
}
