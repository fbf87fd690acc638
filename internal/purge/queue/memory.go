package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// pendingURL tracks one coalesced URL with its earliest due time
type pendingURL struct {
	url string
	due time.Time
}

// MemoryQueue is a thread-safe in-memory pending-purge store. Contents are
// lost on process crash.
type MemoryQueue struct {
	mu      sync.Mutex
	urls    map[string]time.Time // url -> earliest due
	jobs    []Job                // discrete everything/tags jobs
	maxSize int
}

// NewMemoryQueue creates a memory queue bounded to maxSize pending entries
// (URLs plus discrete jobs)
func NewMemoryQueue(maxSize int) *MemoryQueue {
	return &MemoryQueue{
		urls:    make(map[string]time.Time),
		maxSize: maxSize,
	}
}

func (q *MemoryQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch job.Mode {
	case ModeURLs:
		for _, u := range job.URLs {
			if existing, ok := q.urls[u]; ok {
				// Coalesce: keep the earliest due time
				if job.NotBefore.Before(existing) {
					q.urls[u] = job.NotBefore
				}
				continue
			}
			if q.size() >= q.maxSize {
				return fmt.Errorf("purge queue full (max %d)", q.maxSize)
			}
			q.urls[u] = job.NotBefore
		}
		return nil

	case ModeEverything, ModeTags:
		if q.size() >= q.maxSize {
			return fmt.Errorf("purge queue full (max %d)", q.maxSize)
		}
		q.jobs = append(q.jobs, job)
		return nil

	default:
		return fmt.Errorf("unknown job mode %q", job.Mode)
	}
}

func (q *MemoryQueue) PopDue(_ context.Context, now time.Time, limit int) ([]Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var result []Job
	taken := 0

	var dueURLs []string
	for u, due := range q.urls {
		if taken >= limit {
			break
		}
		if !due.After(now) {
			dueURLs = append(dueURLs, u)
			taken++
		}
	}
	for _, u := range dueURLs {
		delete(q.urls, u)
	}
	if len(dueURLs) > 0 {
		result = append(result, Job{
			ID:        uuid.New().String(),
			Mode:      ModeURLs,
			URLs:      dueURLs,
			CreatedAt: now,
			NotBefore: now,
		})
	}

	remaining := q.jobs[:0]
	for _, job := range q.jobs {
		if taken < limit && !job.NotBefore.After(now) {
			result = append(result, job)
			taken++
			continue
		}
		remaining = append(remaining, job)
	}
	q.jobs = remaining

	return result, nil
}

func (q *MemoryQueue) Depth(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size(), nil
}

// size must be called with the lock held
func (q *MemoryQueue) size() int {
	return len(q.urls) + len(q.jobs)
}
