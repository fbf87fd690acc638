package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/purgeline/purged/internal/common/configtypes"
)

// Client wraps go-redis with logging for the operations the purge queue needs
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
	config *configtypes.RedisConfig
}

// Z is a sorted-set member with its score
type Z struct {
	Score  float64
	Member string
}

func NewClient(cfg *configtypes.RedisConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// go-redis library defaults for timeouts and pool sizing
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	client := &Client{
		rdb:    rdb,
		logger: logger,
		config: cfg,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Debug("Redis client connected successfully",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB))

	return client, nil
}

func (c *Client) Ping(ctx context.Context) error {
	result, err := c.rdb.Ping(ctx).Result()
	if err != nil {
		c.logger.Error("Redis ping failed", zap.Error(err))
		return err
	}

	if result != "PONG" {
		err := fmt.Errorf("unexpected ping response: %s", result)
		c.logger.Error("Redis ping returned unexpected response", zap.String("response", result))
		return err
	}

	return nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	start := time.Now().UTC()

	if err := c.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}

	c.logger.Debug("Redis health check passed", zap.Duration("duration", time.Since(start)))
	return nil
}

// ZAddNX adds a member to a sorted set only if it does not already exist,
// preserving the existing score (earliest due time wins)
func (c *Client) ZAddNX(ctx context.Context, key string, score float64, member string) error {
	err := c.rdb.ZAddNX(ctx, key, redis.Z{Score: score, Member: member}).Err()
	if err != nil {
		c.logger.Error("Redis ZADD NX failed",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("redis zadd nx failed: %w", err)
	}
	return nil
}

func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	err := c.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	if err != nil {
		c.logger.Error("Redis ZADD failed",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("redis zadd failed: %w", err)
	}
	return nil
}

// ZRangeByScoreWithLimit returns up to count members with min <= score <= max
func (c *Client) ZRangeByScoreWithLimit(ctx context.Context, key, min, max string, count int64) ([]Z, error) {
	result, err := c.rdb.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min:   min,
		Max:   max,
		Count: count,
	}).Result()
	if err != nil {
		c.logger.Error("Redis ZRANGEBYSCORE failed",
			zap.String("key", key),
			zap.Error(err))
		return nil, fmt.Errorf("redis zrangebyscore failed: %w", err)
	}

	members := make([]Z, 0, len(result))
	for _, z := range result {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		members = append(members, Z{Score: z.Score, Member: member})
	}
	return members, nil
}

func (c *Client) ZRem(ctx context.Context, key string, members ...string) error {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}

	err := c.rdb.ZRem(ctx, key, args...).Err()
	if err != nil {
		c.logger.Error("Redis ZREM failed",
			zap.String("key", key),
			zap.Error(err))
		return fmt.Errorf("redis zrem failed: %w", err)
	}
	return nil
}

func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	result, err := c.rdb.ZCard(ctx, key).Result()
	if err != nil {
		c.logger.Error("Redis ZCARD failed",
			zap.String("key", key),
			zap.Error(err))
		return 0, fmt.Errorf("redis zcard failed: %w", err)
	}
	return result, nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	err := c.rdb.Del(ctx, keys...).Err()
	if err != nil {
		c.logger.Error("Redis DEL failed", zap.Error(err))
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
