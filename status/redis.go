package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/dataflow/logger"
	"github.com/kbukum/dataflow/op"
)

// RedisConfig holds the Redis connection used by RedisSink.
type RedisConfig struct {
	// Enabled controls whether run statuses are published to Redis.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr" mapstructure:"addr"`

	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
	PoolSize int    `yaml:"pool_size" mapstructure:"pool_size"`

	// DialTimeout, ReadTimeout and WriteTimeout are durations such as "3s".
	DialTimeout  string `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  string `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout" mapstructure:"write_timeout"`

	// KeyPrefix is prepended to every key (default "dataflow").
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`

	// TTL expires run keys after the last write (e.g. "168h"). Empty keeps
	// them forever.
	TTL string `yaml:"ttl" mapstructure:"ttl"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *RedisConfig) ApplyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.DialTimeout == "" {
		c.DialTimeout = "5s"
	}
	if c.ReadTimeout == "" {
		c.ReadTimeout = "3s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "3s"
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "dataflow"
	}
}

// Validate checks that required fields are present and parseable.
func (c *RedisConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	for name, v := range map[string]string{
		"dial_timeout":  c.DialTimeout,
		"read_timeout":  c.ReadTimeout,
		"write_timeout": c.WriteTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, v, err)
		}
	}
	if c.TTL != "" {
		if _, err := time.ParseDuration(c.TTL); err != nil {
			return fmt.Errorf("invalid ttl %q: %w", c.TTL, err)
		}
	}
	return nil
}

// NewRedisClient creates a go-redis client from cfg.
func NewRedisClient(cfg RedisConfig, log *logger.Logger) (*goredis.Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("redis config: %w", err)
	}
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is disabled")
	}
	dialTimeout, _ := time.ParseDuration(cfg.DialTimeout)
	readTimeout, _ := time.ParseDuration(cfg.ReadTimeout)
	writeTimeout, _ := time.ParseDuration(cfg.WriteTimeout)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})
	if log != nil {
		log.Info("Redis client created", map[string]interface{}{
			"addr":      cfg.Addr,
			"db":        cfg.DB,
			"pool_size": cfg.PoolSize,
		})
	}
	return rdb, nil
}

// RedisSink publishes statuses to a hash and events to a list per run:
//
//	HSET  <prefix>:run:<id>:status <index>:<name> <status>
//	RPUSH <prefix>:run:<id>:logs   <event json>
type RedisSink struct {
	rdb    goredis.Cmdable
	prefix string
	ttl    time.Duration
}

// NewRedisSink returns a sink writing through rdb. A zero ttl keeps keys.
func NewRedisSink(rdb goredis.Cmdable, prefix string, ttl time.Duration) *RedisSink {
	if prefix == "" {
		prefix = "dataflow"
	}
	return &RedisSink{rdb: rdb, prefix: prefix, ttl: ttl}
}

// NewRedisSinkFromConfig connects using cfg.
func NewRedisSinkFromConfig(cfg RedisConfig, log *logger.Logger) (*RedisSink, *goredis.Client, error) {
	rdb, err := NewRedisClient(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	var ttl time.Duration
	if cfg.TTL != "" {
		ttl, _ = time.ParseDuration(cfg.TTL)
	}
	return NewRedisSink(rdb, cfg.KeyPrefix, ttl), rdb, nil
}

// StatusKey returns the hash key holding the statuses of runID.
func (s *RedisSink) StatusKey(runID string) string {
	return fmt.Sprintf("%s:run:%s:status", s.prefix, runID)
}

// LogKey returns the list key holding the events of runID.
func (s *RedisSink) LogKey(runID string) string {
	return fmt.Sprintf("%s:run:%s:logs", s.prefix, runID)
}

// SetStatus implements op.StatusSink.
func (s *RedisSink) SetStatus(ctx context.Context, runID string, ref op.Ref, st op.Status) error {
	key := s.StatusKey(runID)
	if err := s.rdb.HSet(ctx, key, ref.Key(), string(st)).Err(); err != nil {
		return fmt.Errorf("redis status: %w", err)
	}
	return s.expire(ctx, key)
}

// AppendLog implements op.StatusSink.
func (s *RedisSink) AppendLog(ctx context.Context, runID string, ev op.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redis log: %w", err)
	}
	key := s.LogKey(runID)
	if err := s.rdb.RPush(ctx, key, b).Err(); err != nil {
		return fmt.Errorf("redis log: %w", err)
	}
	return s.expire(ctx, key)
}

func (s *RedisSink) expire(ctx context.Context, key string) error {
	if s.ttl <= 0 {
		return nil
	}
	return s.rdb.Expire(ctx, key, s.ttl).Err()
}

// Statuses reads back the status table of runID.
func (s *RedisSink) Statuses(ctx context.Context, runID string) (map[string]op.Status, error) {
	raw, err := s.rdb.HGetAll(ctx, s.StatusKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis status: %w", err)
	}
	out := make(map[string]op.Status, len(raw))
	for k, v := range raw {
		out[k] = op.Status(v)
	}
	return out, nil
}

// Logs reads back the events of runID in order.
func (s *RedisSink) Logs(ctx context.Context, runID string) ([]op.Event, error) {
	raw, err := s.rdb.LRange(ctx, s.LogKey(runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis log: %w", err)
	}
	out := make([]op.Event, 0, len(raw))
	for _, r := range raw {
		var ev op.Event
		if err := json.Unmarshal([]byte(r), &ev); err != nil {
			return nil, fmt.Errorf("redis log: %w", err)
		}
		out = append(out, ev)
	}
	return out, nil
}
