package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"cryptosim-bot/internal/bot"
	"cryptosim-bot/internal/position"
)

const (
	// PositionKeyPrefix is the prefix for open position keys
	// Format: cryptosim:position:{symbol}
	PositionKeyPrefix = "cryptosim:position"

	// PositionStateTTL bounds how long an abandoned key lives
	PositionStateTTL = 7 * 24 * time.Hour
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// NewRedisClient creates a client. It does not verify connectivity.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// PositionCache is a read-through cache in front of a PositionStore. Open
// positions are kept in Redis when it is reachable and always in memory, so
// rehydration works while Redis is down.
type PositionCache struct {
	client         *redis.Client
	backing        bot.PositionStore
	cache          map[string]position.Position // key = symbol
	cacheMu        sync.RWMutex
	redisAvailable atomic.Bool
	logger         zerolog.Logger
}

// NewPositionCache creates a cache. client and backing may be nil.
func NewPositionCache(ctx context.Context, client *redis.Client, backing bot.PositionStore, logger zerolog.Logger) *PositionCache {
	c := &PositionCache{
		client:  client,
		backing: backing,
		cache:   make(map[string]position.Position),
		logger:  logger.With().Str("component", "position-cache").Logger(),
	}

	if client == nil {
		c.logger.Info().Msg("No Redis client provided, using in-memory cache only")
		return c
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Redis unavailable at startup, using in-memory cache")
		return c
	}
	c.redisAvailable.Store(true)
	c.logger.Info().Msg("Redis connected")
	return c
}

func positionKey(symbol string) string {
	return fmt.Sprintf("%s:%s", PositionKeyPrefix, symbol)
}

// GetOpenPosition checks Redis, then memory, then the backing store
func (c *PositionCache) GetOpenPosition(ctx context.Context, symbol string) (position.Position, bool, error) {
	if c.client != nil && c.redisAvailable.Load() {
		data, err := c.client.Get(ctx, positionKey(symbol)).Result()
		switch {
		case err == nil:
			var p position.Position
			if err := json.Unmarshal([]byte(data), &p); err != nil {
				return position.Position{}, false, fmt.Errorf("failed to unmarshal position: %w", err)
			}
			c.put(p)
			return p, true, nil
		case errors.Is(err, redis.Nil):
		default:
			c.logger.Warn().Err(err).Msg("Redis read error, using in-memory cache")
			c.redisAvailable.Store(false)
		}
	}

	if p, ok := c.get(symbol); ok {
		return p, true, nil
	}

	if c.backing == nil {
		return position.Position{}, false, nil
	}
	p, found, err := c.backing.GetOpenPosition(ctx, symbol)
	if err != nil || !found {
		return p, found, err
	}
	c.put(p)
	c.writeRedis(ctx, p)
	return p, true, nil
}

// SavePosition updates memory and Redis, then the backing store. Only a
// backing store failure is returned.
func (c *PositionCache) SavePosition(ctx context.Context, p position.Position) error {
	c.put(p)
	c.writeRedis(ctx, p)
	if c.backing == nil {
		return nil
	}
	return c.backing.SavePosition(ctx, p)
}

// DeletePosition removes the position everywhere
func (c *PositionCache) DeletePosition(ctx context.Context, id string) error {
	c.cacheMu.Lock()
	var symbol string
	for s, p := range c.cache {
		if p.ID == id {
			symbol = s
			delete(c.cache, s)
			break
		}
	}
	c.cacheMu.Unlock()

	if symbol != "" && c.client != nil && c.redisAvailable.Load() {
		if err := c.client.Del(ctx, positionKey(symbol)).Err(); err != nil {
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to delete from Redis")
			c.redisAvailable.Store(false)
		}
	}

	if c.backing == nil {
		return nil
	}
	return c.backing.DeletePosition(ctx, id)
}

// IsRedisAvailable reports whether Redis is currently in use
func (c *PositionCache) IsRedisAvailable() bool {
	return c.redisAvailable.Load()
}

// CheckRedisConnection pings Redis and re-enables it after recovery
func (c *PositionCache) CheckRedisConnection(ctx context.Context) error {
	if c.client == nil {
		return errors.New("no Redis client configured")
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.redisAvailable.Store(false)
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if !c.redisAvailable.Swap(true) {
		c.logger.Info().Msg("Redis connection recovered")
	}
	return nil
}

func (c *PositionCache) writeRedis(ctx context.Context, p position.Position) {
	if c.client == nil || !c.redisAvailable.Load() {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to marshal position")
		return
	}
	if err := c.client.Set(ctx, positionKey(p.Symbol), data, PositionStateTTL).Err(); err != nil {
		c.logger.Warn().Err(err).Str("symbol", p.Symbol).Msg("Failed to save to Redis, using in-memory cache")
		c.redisAvailable.Store(false)
	}
}

func (c *PositionCache) put(p position.Position) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.cache[p.Symbol] = p
}

func (c *PositionCache) get(symbol string) (position.Position, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	p, ok := c.cache[symbol]
	return p, ok
}
