package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads a YAML config file, applies defaults and environment
// overrides, and watches the file for changes.
type Loader struct {
	path     string
	lookup   func(string) (string, bool)
	log      *slog.Logger
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnv replaces os.LookupEnv as the source of overrides.
func WithEnv(lookup func(string) (string, bool)) Option {
	return func(l *Loader) { l.lookup = lookup }
}

// WithLogger sets the logger used to report reload failures.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loader) { l.log = log }
}

// NewLoader creates a Loader and performs the initial load. An empty path
// yields defaults plus environment overrides.
func NewLoader(path string, opts ...Option) (*Loader, error) {
	l := &Loader{path: path, lookup: os.LookupEnv, log: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that reloads the config on file
// changes. An invalid file is logged and the previous config kept.
// Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	if l.path == "" {
		return nil, errors.New("config watcher: no config file")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}

	done := make(chan struct{})
	var once sync.Once
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					if _, err := l.Reload(); err != nil {
						l.log.Warn("config.reload.skipped", "path", l.path, "err", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				l.log.Warn("config.watch.error", "err", err)
			case <-done:
				return
			}
		}
	}()

	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the config file. The new config
// must validate before it replaces the current one.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*Config, error) {
	var cfg Config
	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", l.path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", l.path, err)
		}
	}
	if err := applyEnv(&cfg, l.lookup); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 20000
	}
	if cfg.HTTP.ShutdownTimeout == 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "mongo"
	}
	if cfg.Store.Mongo.URI == "" {
		cfg.Store.Mongo.URI = "mongodb://localhost:27017"
	}
	if cfg.Store.Mongo.Database == "" {
		cfg.Store.Mongo.Database = "shieldx"
	}
	if cfg.Store.Mongo.Timeout == 0 {
		cfg.Store.Mongo.Timeout = 10 * time.Second
	}
	if cfg.Store.SQLite.Path == "" {
		cfg.Store.SQLite.Path = "shieldx.db"
	}
	if cfg.Broker.Driver == "" {
		cfg.Broker.Driver = "amqp"
	}
	if cfg.Broker.Host == "" {
		cfg.Broker.Host = "localhost"
	}
	if cfg.Broker.Port == 0 {
		cfg.Broker.Port = 5672
	}
	if cfg.Broker.User == "" {
		cfg.Broker.User = "guest"
		if cfg.Broker.Password == "" {
			cfg.Broker.Password = "guest"
		}
	}
	if cfg.Broker.Exchange == "" {
		cfg.Broker.Exchange = "default_exchange"
	}
	if cfg.Broker.ReconnectDelay == 0 {
		cfg.Broker.ReconnectDelay = 5 * time.Second
	}
	if cfg.Broker.Prefetch == 0 {
		cfg.Broker.Prefetch = 10
	}
	if len(cfg.Relay.Queues) == 0 {
		cfg.Relay.Queues = []string{"s_security"}
	}
	if cfg.Engine.Workers == 0 {
		cfg.Engine.Workers = 4
	}
	if cfg.Engine.QueueDepth == 0 {
		cfg.Engine.QueueDepth = 1000
	}
	if cfg.Engine.TimeoutMs == 0 {
		cfg.Engine.TimeoutMs = 5000
	}
	if cfg.Startup.MaxRetries == 0 {
		cfg.Startup.MaxRetries = 5
	}
	if cfg.Startup.RetryDelay == 0 {
		cfg.Startup.RetryDelay = 2 * time.Second
	}
}

// applyEnv overlays the deployment environment variables on cfg.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []string
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not an integer", key, v))
			return
		}
		*dst = n
	}

	str("RABBITMQ_HOST", &cfg.Broker.Host)
	num("RABBITMQ_PORT", &cfg.Broker.Port)
	str("MONGO_URI", &cfg.Store.Mongo.URI)
	str("MONGO_DATABASE_NAME", &cfg.Store.Mongo.Database)
	str("SERVER_IP_ADDR", &cfg.HTTP.Host)
	num("SERVER_PORT", &cfg.HTTP.Port)
	num("MAX_RETRIES", &cfg.Startup.MaxRetries)
	str("SHIELDX_STORE_DRIVER", &cfg.Store.Driver)
	str("SHIELDX_LOG_LEVEL", &cfg.Log.Level)
	if v, ok := lookup("QUEUES"); ok && v != "" {
		cfg.Relay.Queues = splitList(v)
	}

	if len(errs) > 0 {
		return fmt.Errorf("config environment errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
