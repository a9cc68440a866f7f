package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config is the top-level YAML structure.
type Config struct {
	Log     LogConf     `yaml:"log"`
	HTTP    HTTPConf    `yaml:"http"`
	Store   StoreConf   `yaml:"store"`
	Broker  BrokerConf  `yaml:"broker"`
	Relay   RelayConf   `yaml:"relay"`
	Engine  EngineConf  `yaml:"engine"`
	Startup StartupConf `yaml:"startup"`
}

// LogConf selects the slog handler and level.
type LogConf struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// HTTPConf is the API bind address.
type HTTPConf struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (h HTTPConf) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// StoreConf selects and configures the storage backend.
type StoreConf struct {
	Driver string     `yaml:"driver"` // mongo | sqlite | memory
	Mongo  MongoConf  `yaml:"mongo"`
	SQLite SQLiteConf `yaml:"sqlite"`
}

type MongoConf struct {
	URI          string        `yaml:"uri"`
	Database     string        `yaml:"database"`
	Transactions bool          `yaml:"transactions"`
	Timeout      time.Duration `yaml:"timeout"`
}

type SQLiteConf struct {
	Path string `yaml:"path"`
}

// BrokerConf configures the message broker connection.
type BrokerConf struct {
	Driver         string        `yaml:"driver"` // amqp | memory
	URL            string        `yaml:"url"`    // overrides host, port, user, password and vhost
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	VHost          string        `yaml:"vhost"`
	Exchange       string        `yaml:"exchange"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	Prefetch       int           `yaml:"prefetch"`
}

// AMQPURL returns URL, or builds one from the individual fields.
func (b BrokerConf) AMQPURL() string {
	if b.URL != "" {
		return b.URL
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(b.User, b.Password),
		Host:   net.JoinHostPort(b.Host, strconv.Itoa(b.Port)),
		Path:   "/" + b.VHost,
	}
	if b.VHost == "/" || b.VHost == "" {
		u.Path = "/"
	}
	return u.String()
}

// RelayConf lists the queues consumed and the failure policy.
type RelayConf struct {
	Queues []string `yaml:"queues"`
	// DropOnFailure discards messages that failed for a transient reason
	// instead of returning them to the queue.
	DropOnFailure bool `yaml:"drop_on_failure"`
}

// EngineConf holds activation engine concurrency settings.
type EngineConf struct {
	Workers    int `yaml:"workers"`
	QueueDepth int `yaml:"queue_depth"`
	TimeoutMs  int `yaml:"timeout_ms"`
}

// StartupConf bounds dependency checks at process start.
type StartupConf struct {
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

func (c *Config) String() string {
	return fmt.Sprintf("store=%s broker=%s queues=%v http=%s", c.Store.Driver, c.Broker.Driver, c.Relay.Queues, c.HTTP.Addr())
}
