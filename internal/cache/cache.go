package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// TTLs used by the write-through paths.
const (
	InfoTTL       = 24 * time.Hour
	ConnectorsTTL = time.Hour
	StatusTTL     = time.Hour
	GlobalTTL     = 30 * time.Second
)

// Gateway is the cache contract the protocol core depends on.
type Gateway interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Key builders for the station snapshot scheme.

// InfoKey holds charge point identity and metadata.
func InfoKey(chargePointID string) string {
	return fmt.Sprintf("chargepoint:%s:info", chargePointID)
}

// ConnectorsKey holds the connector snapshot of a station.
func ConnectorsKey(chargePointID string) string {
	return fmt.Sprintf("chargepoint:%s:connectors", chargePointID)
}

// StatusKey holds the station availability record.
func StatusKey(chargePointID string) string {
	return fmt.Sprintf("chargepoint:%s:status", chargePointID)
}

// AllStationsKey holds the short-lived global station list snapshot.
const AllStationsKey = "chargeStations:all"

// RedisGateway implements Gateway on Redis.
type RedisGateway struct {
	Client *redis.Client
}

// Config carries the Redis connection settings.
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewRedisGateway connects to Redis and verifies the connection.
func NewRedisGateway(cfg Config) (*RedisGateway, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	return &RedisGateway{Client: client}, nil
}

// NewRedisGatewayFromClient wraps an existing client (used with redismock).
func NewRedisGatewayFromClient(client *redis.Client) *RedisGateway {
	return &RedisGateway{Client: client}
}

// Set writes a value with a TTL. Non-string values are JSON encoded.
func (g *RedisGateway) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := encode(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value for %s: %w", key, err)
	}
	if err := g.Client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	return nil
}

// Get reads a raw value; ErrCacheMiss when absent.
func (g *RedisGateway) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := g.Client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache key %s: %w", key, err)
	}
	return val, nil
}

// Del removes a key.
func (g *RedisGateway) Del(ctx context.Context, key string) error {
	if err := g.Client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}
	return nil
}

// Ping probes the backend.
func (g *RedisGateway) Ping(ctx context.Context) error {
	return g.Client.Ping(ctx).Err()
}

// Close releases the client.
func (g *RedisGateway) Close() error {
	return g.Client.Close()
}

func encode(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string, []byte:
		return v, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}

// DisconnectRecord is the tombstone written to the status key when the
// socket closes.
type DisconnectRecord struct {
	Status         string    `json:"status"`
	DisconnectedAt time.Time `json:"disconnectedAt"`
}

// NewDisconnectRecord builds the tombstone for a disconnect at ts.
func NewDisconnectRecord(ts time.Time) DisconnectRecord {
	return DisconnectRecord{Status: "unavailable", DisconnectedAt: ts.UTC()}
}
