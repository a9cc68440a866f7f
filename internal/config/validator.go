package config

import (
	"fmt"
	"strings"
)

var (
	storeDrivers  = map[string]bool{"mongo": true, "sqlite": true, "memory": true}
	brokerDrivers = map[string]bool{"amqp": true, "memory": true}
	logLevels     = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	logFormats    = map[string]bool{"text": true, "json": true}
)

// Validate checks a defaulted config and reports every problem at once.
func Validate(cfg *Config) error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if !logLevels[strings.ToLower(cfg.Log.Level)] {
		add("log.level: unknown level %q", cfg.Log.Level)
	}
	if !logFormats[cfg.Log.Format] {
		add("log.format: must be text or json, got %q", cfg.Log.Format)
	}
	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		add("http.port: %d out of range", cfg.HTTP.Port)
	}

	switch {
	case !storeDrivers[cfg.Store.Driver]:
		add("store.driver: unknown driver %q", cfg.Store.Driver)
	case cfg.Store.Driver == "mongo" && cfg.Store.Mongo.URI == "":
		add("store.mongo.uri is required")
	case cfg.Store.Driver == "sqlite" && cfg.Store.SQLite.Path == "":
		add("store.sqlite.path is required")
	}

	if !brokerDrivers[cfg.Broker.Driver] {
		add("broker.driver: unknown driver %q", cfg.Broker.Driver)
	}
	if cfg.Broker.Exchange == "" {
		add("broker.exchange is required")
	}
	if cfg.Broker.Prefetch < 0 {
		add("broker.prefetch: must not be negative")
	}
	if cfg.Broker.ReconnectDelay <= 0 {
		add("broker.reconnect_delay: must be positive")
	}

	seen := make(map[string]bool)
	for i, q := range cfg.Relay.Queues {
		if q == "" {
			add("relay.queues[%d]: name is required", i)
			continue
		}
		if seen[q] {
			add("relay.queues: duplicate queue %q", q)
		}
		seen[q] = true
	}

	if cfg.Engine.Workers < 1 {
		add("engine.workers: must be at least 1")
	}
	if cfg.Engine.QueueDepth < 1 {
		add("engine.queue_depth: must be at least 1")
	}
	if cfg.Startup.MaxRetries < 1 {
		add("startup.max_retries: must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
