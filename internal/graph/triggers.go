package graph

import (
	"context"
	"strings"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
)

// CreateTrigger stores a new trigger. Names are unique.
func (e *Engine) CreateTrigger(ctx context.Context, name string) (*model.Trigger, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("trigger name is required")
	}
	existing, err := e.store.Triggers().FindOne(ctx, store.Filter{"name": name})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		e.log.Warn("trigger.create.conflict", "name", name)
		return nil, apperr.Conflict("trigger with name '%s' already exists", name)
	}
	t := &model.Trigger{Name: name}
	if _, err := e.store.Triggers().Insert(ctx, t); err != nil {
		return nil, err
	}
	e.log.Info("trigger.created", "trigger_id", t.ID, "name", name)
	return t, nil
}

// ListTriggers returns one page of triggers.
func (e *Engine) ListTriggers(ctx context.Context, p store.Page) ([]*model.Trigger, error) {
	return e.store.Triggers().FindAll(ctx, nil, p)
}

// GetTrigger resolves a trigger by id.
func (e *Engine) GetTrigger(ctx context.Context, tid id.EntityID) (*model.Trigger, error) {
	t, err := e.store.Triggers().FindByID(ctx, tid)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound("trigger %s not found", tid)
	}
	return t, nil
}

// GetTriggerByName resolves a trigger by its unique name.
func (e *Engine) GetTriggerByName(ctx context.Context, name string) (*model.Trigger, error) {
	t, err := e.store.Triggers().FindOne(ctx, store.Filter{"name": name})
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperr.NotFound("trigger '%s' not found", name)
	}
	return t, nil
}

// RenameTrigger changes the name of the trigger called name.
func (e *Engine) RenameTrigger(ctx context.Context, name, newName string) (*model.Trigger, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, apperr.Validation("trigger name is required")
	}
	t, err := e.GetTriggerByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if newName == t.Name {
		return t, nil
	}
	clash, err := e.store.Triggers().FindOne(ctx, store.Filter{"name": newName})
	if err != nil {
		return nil, err
	}
	if clash != nil {
		return nil, apperr.Conflict("trigger with name '%s' already exists", newName)
	}
	updated, err := e.store.Triggers().Update(ctx, t.ID, map[string]any{"name": newName})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperr.NotFound("trigger '%s' not found", name)
	}
	e.log.Info("trigger.updated", "trigger_id", t.ID, "from", name, "to", newName)
	return updated, nil
}

// DeleteTrigger removes the trigger called name. Associations that still
// reference it are left in place and skipped by the cascade walk.
func (e *Engine) DeleteTrigger(ctx context.Context, name string) error {
	t, err := e.GetTriggerByName(ctx, name)
	if err != nil {
		return err
	}
	ok, err := e.store.Triggers().Delete(ctx, t.ID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("trigger '%s' not found", name)
	}
	e.log.Info("trigger.deleted", "trigger_id", t.ID, "name", name)
	return nil
}
