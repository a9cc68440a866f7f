// Package graph is the Trigger Graph Engine. It owns trigger and rule
// lifecycles, every mutation of the three association kinds, and the cascade
// walk from an event type through triggers to the rules they fire.
package graph

import (
	"log/slog"

	"github.com/shieldx/shieldx/internal/store"
	"github.com/shieldx/shieldx/internal/target"
)

// Engine layers business rules over the entity and relation stores.
type Engine struct {
	store   store.Backend
	targets *target.Registry
	log     *slog.Logger
}

// New creates an Engine. A nil logger falls back to slog.Default().
func New(b store.Backend, targets *target.Registry, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{store: b, targets: targets, log: log}
}

// Targets returns the rule target registry the engine validates against.
func (e *Engine) Targets() *target.Registry { return e.targets }
