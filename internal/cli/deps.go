package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/shieldx/shieldx/internal/config"
	"github.com/shieldx/shieldx/internal/engine"
	"github.com/shieldx/shieldx/internal/graph"
	"github.com/shieldx/shieldx/internal/ingest"
	"github.com/shieldx/shieldx/internal/logging"
	"github.com/shieldx/shieldx/internal/relay"
	"github.com/shieldx/shieldx/internal/relay/amqprelay"
	"github.com/shieldx/shieldx/internal/relay/membroker"
	"github.com/shieldx/shieldx/internal/retry"
	"github.com/shieldx/shieldx/internal/store"
	"github.com/shieldx/shieldx/internal/store/memstore"
	"github.com/shieldx/shieldx/internal/store/mongostore"
	"github.com/shieldx/shieldx/internal/store/sqlstore"
	"github.com/shieldx/shieldx/internal/target"
)

// env is what every command starts from.
type env struct {
	loader *config.Loader
	cfg    *config.Config
	log    *slog.Logger
	level  *slog.LevelVar
}

// bootstrap loads and validates the config and builds the process logger.
func bootstrap(opts *RootOptions, stderr io.Writer) (*env, error) {
	loader, err := config.NewLoader(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	log, level := logging.New(stderr, cfg.Log)
	slog.SetDefault(log)
	log.Debug("config.loaded", "config", cfg.String())
	return &env{loader: loader, cfg: cfg, log: log, level: level}, nil
}

// openStore connects to the configured backend, retrying with backoff while
// it is unreachable.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.Backend, error) {
	var b store.Backend
	policy := retry.Policy{
		MaxAttempts:   cfg.Startup.MaxRetries,
		Delay:         cfg.Startup.RetryDelay,
		BackoffFactor: 2,
	}
	err := retry.Do(ctx, log, "store.open", policy, func(ctx context.Context) error {
		opened, err := dialStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		if err := opened.Ping(ctx); err != nil {
			opened.Close(ctx)
			return err
		}
		b = opened
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	log.Info("store.ready", "driver", cfg.Store.Driver)
	return b, nil
}

func dialStore(ctx context.Context, sc config.StoreConf) (store.Backend, error) {
	switch sc.Driver {
	case "memory":
		return memstore.New(), nil
	case "sqlite":
		return sqlstore.Open(sc.SQLite.Path)
	case "mongo":
		return mongostore.Open(ctx, mongostore.Options{
			URI:          sc.Mongo.URI,
			Database:     sc.Mongo.Database,
			Transactions: sc.Mongo.Transactions,
			Timeout:      sc.Mongo.Timeout,
		})
	}
	return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
}

func openBroker(bc config.BrokerConf) (relay.Broker, error) {
	switch bc.Driver {
	case "amqp":
		return amqprelay.New(bc.AMQPURL(), "shieldx"), nil
	case "memory":
		return membroker.New(), nil
	}
	return nil, fmt.Errorf("unknown broker driver %q", bc.Driver)
}

func relayConfig(cfg *config.Config) relay.Config {
	return relay.Config{
		Exchange:         cfg.Broker.Exchange,
		Queues:           cfg.Relay.Queues,
		Prefetch:         cfg.Broker.Prefetch,
		ReconnectDelay:   cfg.Broker.ReconnectDelay,
		DropOnFailure:    cfg.Relay.DropOnFailure,
	}
}

// services are the domain components built over one store.
type services struct {
	graph  *graph.Engine
	engine *engine.Engine
	ingest *ingest.Service
}

// newServices builds the graph engine, the activation engine and the
// ingestion service. Ingested events are handed to the activation engine.
func newServices(ctx context.Context, cfg *config.Config, b store.Backend, log *slog.Logger) *services {
	targets := target.Builtin()
	g := graph.New(b, targets, log)
	eng := engine.New(ctx, g, targets, cfg.Engine, log, engine.OnActivation(logActivation(log)))
	return &services{
		graph:  g,
		engine: eng,
		ingest: ingest.New(b, log, ingest.WithNotifier(eng)),
	}
}

// logActivation summarises each evaluated event. Results with an error or
// an unregistered target are raised to warn.
func logActivation(log *slog.Logger) func(*engine.Result) {
	return func(res *engine.Result) {
		unknown := 0
		for _, r := range res.Rules {
			if !r.Known {
				unknown++
			}
		}
		level := slog.LevelDebug
		if res.Error != "" || unknown > 0 {
			level = slog.LevelWarn
		}
		log.Log(context.Background(), level, "activation.completed",
			"event_id", res.EventID,
			"event_type", res.EventType,
			"triggers", len(res.Triggers),
			"rules", len(res.Rules),
			"unregistered", unknown,
			"cycles", res.Cycles,
			"duration_ms", res.DurationMs,
		)
	}
}
