package graph

import (
	"context"
	"fmt"

	"github.com/shieldx/shieldx/internal/apperr"
	"github.com/shieldx/shieldx/internal/id"
	"github.com/shieldx/shieldx/internal/model"
	"github.com/shieldx/shieldx/internal/store"
)

// CreateRule validates rule against the target registry and stores it.
func (e *Engine) CreateRule(ctx context.Context, rule *model.Rule) (id.EntityID, error) {
	if err := e.targets.Validate(rule); err != nil {
		e.log.Warn("rule.create.invalid", "target", rule.Target, "err", err)
		return id.EntityID{}, err
	}
	rule.ID = id.EntityID{}
	rid, err := e.store.Rules().Insert(ctx, rule)
	if err != nil {
		return id.EntityID{}, err
	}
	e.log.Info("rule.created", "rule_id", rid, "target", rule.Target)
	return rid, nil
}

func (e *Engine) ListRules(ctx context.Context, p store.Page) ([]*model.Rule, error) {
	return e.store.Rules().FindAll(ctx, nil, p)
}

func (e *Engine) GetRule(ctx context.Context, rid id.EntityID) (*model.Rule, error) {
	r, err := e.store.Rules().FindByID(ctx, rid)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apperr.NotFound("rule %s not found", rid)
	}
	return r, nil
}

// UpdateRule replaces the target and parameters of an existing rule.
func (e *Engine) UpdateRule(ctx context.Context, rid id.EntityID, rule *model.Rule) (*model.Rule, error) {
	if err := e.targets.Validate(rule); err != nil {
		return nil, err
	}
	params := rule.Parameters
	if params == nil {
		params = map[string]model.Parameter{}
	}
	updated, err := e.store.Rules().Update(ctx, rid, map[string]any{
		"target":     rule.Target,
		"parameters": params,
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, apperr.NotFound("rule %s not found", rid)
	}
	e.log.Info("rule.updated", "rule_id", rid, "target", rule.Target)
	return updated, nil
}

func (e *Engine) DeleteRule(ctx context.Context, rid id.EntityID) error {
	ok, err := e.store.Rules().Delete(ctx, rid)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("rule %s not found", rid)
	}
	e.log.Info("rule.deleted", "rule_id", rid)
	return nil
}

// CreateAndLink creates rule and links it to the trigger tid in two steps.
// The rule is not removed when the link fails: the caller gets the new rule
// id together with the error and can retry the link alone.
func (e *Engine) CreateAndLink(ctx context.Context, tid id.EntityID, rule *model.Rule) (id.EntityID, error) {
	if _, err := e.GetTrigger(ctx, tid); err != nil {
		return id.EntityID{}, err
	}
	rid, err := e.CreateRule(ctx, rule)
	if err != nil {
		return id.EntityID{}, err
	}
	if _, err := e.Link(ctx, store.TriggerRules, tid, rid); err != nil {
		e.log.Error("rule_trigger.create_and_link.unlinked", "trigger_id", tid, "rule_id", rid, "err", err)
		return rid, fmt.Errorf("rule %s created but not linked: %w", rid, err)
	}
	return rid, nil
}
