package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full gateway configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	API       APIConfig       `mapstructure:"api"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	OCPP      OCPPConfig      `mapstructure:"ocpp"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig covers the charge point WebSocket listener.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	WebSocketPath  string        `mapstructure:"websocket_path"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	MaxConnections int           `mapstructure:"max_connections"`
}

// APIConfig covers the operator REST/SSE listener.
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// RedisConfig covers the cache gateway connection.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// PostgresConfig covers the storage gateway connection.
type PostgresConfig struct {
	DSN          string        `mapstructure:"dsn"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	ConnLifetime time.Duration `mapstructure:"conn_lifetime"`
}

// KafkaConfig covers domain-event publishing.
type KafkaConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	Brokers    []string       `mapstructure:"brokers"`
	EventTopic string         `mapstructure:"event_topic"`
	Producer   ProducerConfig `mapstructure:"producer"`
}

// ProducerConfig tunes the Kafka async producer.
type ProducerConfig struct {
	RetryMax       int           `mapstructure:"retry_max"`
	ReturnSuccess  bool          `mapstructure:"return_successes"`
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
}

// OCPPConfig tunes the protocol engine.
type OCPPConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	CallTimeout       time.Duration `mapstructure:"call_timeout"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	SendQueueSize     int           `mapstructure:"send_queue_size"`
	MeterQueueSize    int           `mapstructure:"meter_queue_size"`
}

// RateLimitConfig bounds per-connection inbound message rates.
type RateLimitConfig struct {
	Points   int           `mapstructure:"points"`
	Duration time.Duration `mapstructure:"duration"`
}

// LogConfig selects level, format and output.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// MetricsConfig is the Prometheus scrape listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SecurityConfig carries transport and API credentials.
type SecurityConfig struct {
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	JWTSecret  string `mapstructure:"jwt_secret"`
}

// Load reads the config file (if any), applies defaults and env bindings,
// and unmarshals the result.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.websocket_path", "/ocpp")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.max_connections", 1000)

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("postgres.dsn", "postgres://localhost/ocpp?sslmode=disable")
	v.SetDefault("postgres.max_open_conns", 20)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_lifetime", 30*time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.event_topic", "ocpp-events")
	v.SetDefault("kafka.producer.retry_max", 3)
	v.SetDefault("kafka.producer.return_successes", true)
	v.SetDefault("kafka.producer.flush_frequency", 500*time.Millisecond)

	v.SetDefault("ocpp.heartbeat_interval", 300*time.Second)
	v.SetDefault("ocpp.call_timeout", 30*time.Second)
	v.SetDefault("ocpp.sweep_interval", 30*time.Second)
	v.SetDefault("ocpp.send_queue_size", 256)
	v.SetDefault("ocpp.meter_queue_size", 1024)

	v.SetDefault("rate_limit.points", 100)
	v.SetDefault("rate_limit.duration", time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.async", false)

	v.SetDefault("metrics.addr", ":9090")
}

func bindEnv(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Deployment-facing names kept stable across releases.
	v.BindEnv("server.port", "WS_PORT")
	v.BindEnv("redis.addr", "REDIS_URL")
	v.BindEnv("postgres.dsn", "DATABASE_URL")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("rate_limit.points", "RATE_LIMIT_POINTS")
	v.BindEnv("rate_limit.duration", "RATE_LIMIT_DURATION")
	v.BindEnv("security.jwt_secret", "JWT_SECRET")
}

// GetServerAddr returns the WebSocket listen address.
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetAPIAddr returns the operator API listen address.
func (c *Config) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// GetMetricsAddr returns the Prometheus listen address.
func (c *Config) GetMetricsAddr() string {
	return c.Metrics.Addr
}
