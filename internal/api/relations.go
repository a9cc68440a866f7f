package api

import (
	"net/http"

	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
)

// relationRoutes describes the HTTP shape of one relation kind.
type relationRoutes struct {
	kind store.RelationKind
	// base is the collection path of the A side, e.g. "/event-types/{a}/triggers".
	base string
	// record renders a stored pair in the kind's public field names.
	record func(store.Pair) any
}

func (h *Handler) registerRelations() {
	kinds := []relationRoutes{
		{
			kind: store.EventTypeTriggers,
			base: "/event-types/{a}/triggers",
			record: func(p store.Pair) any {
				return model.EventTypeTrigger{EventTypeID: p.A, TriggerID: p.B}
			},
		},
		{
			kind: store.TriggerRules,
			base: "/triggers/{a}/rules",
			record: func(p store.Pair) any {
				return model.RuleTrigger{TriggerID: p.A, RuleID: p.B}
			},
		},
		{
			kind: store.TriggerChildren,
			base: "/triggers/{a}/children",
			record: func(p store.Pair) any {
				return model.TriggerTrigger{ParentID: p.A, ChildID: p.B}
			},
		},
	}
	for _, k := range kinds {
		h.route("GET "+k.base, h.listRelations(k, false))
		h.route("POST "+k.base+"/{b}", h.link(k.kind))
		h.route("DELETE "+k.base+"/{b}", h.unlink(k.kind))
	}
	h.route("PUT /event-types/{a}/triggers", h.replaceRelations(store.EventTypeTriggers))
	h.route("GET /triggers/{b}/parents", h.listRelations(kinds[2], true))
	h.route("POST /triggers/{a}/rules", h.createAndLinkRule)
}

// listRelations lists pairs by the A side, or by the B side when reverse is set.
func (h *Handler) listRelations(k relationRoutes, reverse bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var (
			pairs []store.Pair
			err   error
		)
		if reverse {
			var b id.EntityID
			if b, err = pathID(r, "b"); err == nil {
				pairs, err = h.graph.ListTo(r.Context(), k.kind, b)
			}
		} else {
			var a id.EntityID
			if a, err = pathID(r, "a"); err == nil {
				pairs, err = h.graph.ListFor(r.Context(), k.kind, a)
			}
		}
		if err != nil {
			h.fail(w, r, err)
			return
		}
		out := make([]any, 0, len(pairs))
		for _, p := range pairs {
			out = append(out, k.record(p))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func pairIDs(r *http.Request) (a, b id.EntityID, err error) {
	if a, err = pathID(r, "a"); err != nil {
		return
	}
	b, err = pathID(r, "b")
	return
}

// link answers 204 whether or not the pair already existed.
func (h *Handler) link(kind store.RelationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, b, err := pairIDs(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if _, err := h.graph.Link(r.Context(), kind, a, b); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// unlink answers 204 whether or not the pair existed.
func (h *Handler) unlink(kind store.RelationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, b, err := pairIDs(r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if _, err := h.graph.Unlink(r.Context(), kind, a, b); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// replaceRelations takes the complete list of B ids as the body.
func (h *Handler) replaceRelations(kind store.RelationKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := pathID(r, "a")
		if err != nil {
			h.fail(w, r, err)
			return
		}
		var raw []string
		if err := decodeBody(w, r, &raw); err != nil {
			h.fail(w, r, err)
			return
		}
		bs, err := id.ParseAll(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if err := h.graph.ReplaceFor(r.Context(), kind, a, bs); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type partialFailure struct {
	Error string      `json:"error"`
	ID    id.EntityID `json:"id"`
}

// POST /api/v1/triggers/{a}/rules: create a rule and link it to the trigger.
// When only the link fails the response still carries the new rule id.
func (h *Handler) createAndLinkRule(w http.ResponseWriter, r *http.Request) {
	tid, err := pathID(r, "a")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var rule model.Rule
	if err := decodeBody(w, r, &rule); err != nil {
		h.fail(w, r, err)
		return
	}
	rid, err := h.graph.CreateAndLink(r.Context(), tid, &rule)
	if err != nil {
		if rid.IsZero() {
			h.fail(w, r, err)
			return
		}
		h.log.Error("http.create_and_link.partial", "trigger_id", tid, "rule_id", rid, "err", err)
		writeJSON(w, http.StatusInternalServerError, partialFailure{Error: "rule created but not linked", ID: rid})
		return
	}
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Rule created and linked", ID: rid})
}
