package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/purgeline/purged/internal/common/redis"
)

// RedisQueue is a pending-purge store backed by Redis sorted sets, scored by
// due time in unix milliseconds. URL members are the URLs themselves, so a
// URL submitted twice occupies one slot with its earliest due time (ZADD NX
// keeps the existing score). Pending purges survive a daemon restart.
type RedisQueue struct {
	redis  *redis.Client
	keys   *redis.KeyGenerator
	zoneID string
	logger *zap.Logger
}

// NewRedisQueue creates a Redis-backed queue scoped to one zone
func NewRedisQueue(redisClient *redis.Client, zoneID string, logger *zap.Logger) *RedisQueue {
	return &RedisQueue{
		redis:  redisClient,
		keys:   redis.NewKeyGenerator(),
		zoneID: zoneID,
		logger: logger,
	}
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	score := float64(job.NotBefore.UnixMilli())

	switch job.Mode {
	case ModeURLs:
		key := q.keys.PendingURLsKey(q.zoneID)
		for _, u := range job.URLs {
			if err := q.redis.ZAddNX(ctx, key, score, u); err != nil {
				return fmt.Errorf("failed to enqueue pending URL: %w", err)
			}
		}
		q.logger.Debug("Enqueued pending purge URLs",
			zap.Int("url_count", len(job.URLs)),
			zap.Time("not_before", job.NotBefore))
		return nil

	case ModeEverything, ModeTags:
		member, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal purge job: %w", err)
		}
		key := q.keys.PendingJobsKey(q.zoneID)
		if err := q.redis.ZAdd(ctx, key, score, string(member)); err != nil {
			return fmt.Errorf("failed to enqueue purge job: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown job mode %q", job.Mode)
	}
}

func (q *RedisQueue) PopDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	maxScore := strconv.FormatInt(now.UnixMilli(), 10)
	var result []Job

	urlsKey := q.keys.PendingURLsKey(q.zoneID)
	due, err := q.redis.ZRangeByScoreWithLimit(ctx, urlsKey, "-inf", maxScore, int64(limit))
	if err != nil {
		return nil, err
	}

	if len(due) > 0 {
		urls := make([]string, 0, len(due))
		for _, z := range due {
			urls = append(urls, z.Member)
		}
		if err := q.redis.ZRem(ctx, urlsKey, urls...); err != nil {
			return nil, err
		}
		result = append(result, Job{
			ID:        uuid.New().String(),
			Mode:      ModeURLs,
			URLs:      urls,
			CreatedAt: now,
			NotBefore: now,
		})
	}

	jobsKey := q.keys.PendingJobsKey(q.zoneID)
	remaining := limit - len(due)
	if remaining <= 0 {
		return result, nil
	}

	dueJobs, err := q.redis.ZRangeByScoreWithLimit(ctx, jobsKey, "-inf", maxScore, int64(remaining))
	if err != nil {
		return nil, err
	}

	for _, z := range dueJobs {
		var job Job
		if err := json.Unmarshal([]byte(z.Member), &job); err != nil {
			q.logger.Warn("Malformed pending job, discarding",
				zap.String("member", z.Member),
				zap.Error(err))
			_ = q.redis.ZRem(ctx, jobsKey, z.Member)
			continue
		}
		if err := q.redis.ZRem(ctx, jobsKey, z.Member); err != nil {
			return nil, err
		}
		result = append(result, job)
	}

	return result, nil
}

func (q *RedisQueue) Depth(ctx context.Context) (int, error) {
	urls, err := q.redis.ZCard(ctx, q.keys.PendingURLsKey(q.zoneID))
	if err != nil {
		return 0, err
	}
	jobs, err := q.redis.ZCard(ctx, q.keys.PendingJobsKey(q.zoneID))
	if err != nil {
		return 0, err
	}
	return int(urls + jobs), nil
}
