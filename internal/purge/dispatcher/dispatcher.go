// Package dispatcher orchestrates the purge pipeline: resolution, batching,
// scheduling and delivery to the CDN API.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/purgeline/purged/internal/purge/batcher"
	"github.com/purgeline/purged/internal/purge/cloudflare"
	"github.com/purgeline/purged/internal/purge/metrics"
	"github.com/purgeline/purged/internal/purge/queue"
	"github.com/purgeline/purged/internal/purge/resolver"
)

// Client is the CDN API surface the dispatcher delivers to
type Client interface {
	PurgeURLs(ctx context.Context, urls []string) (*cloudflare.Result, error)
	PurgeEverything(ctx context.Context) (*cloudflare.Result, error)
	PurgeTags(ctx context.Context, tags []string) (*cloudflare.Result, error)
}

// ChangeListener receives entity mutation notifications from framework
// adapters. The Dispatcher implements it.
type ChangeListener interface {
	OnEntityChanged(ctx context.Context, entity resolver.Entity) error
}

// Options configures dispatch behavior
type Options struct {
	// Enabled gates all CDN calls; when false every operation is an
	// observable no-op returning a Skipped outcome
	Enabled bool
	// Background hands jobs to the queue instead of delivering inline
	Background bool
	// Delay postpones the start of background execution relative to job
	// creation; inline calls always execute immediately
	Delay time.Duration
	// BatchSize is the per-call URL ceiling
	BatchSize int
}

// Dispatcher is the single entry point for purge operations, used by the
// event source, the internal API and CLI callers alike.
type Dispatcher struct {
	opts     Options
	client   Client
	resolver *resolver.Resolver
	queue    queue.Queue
	metrics  *metrics.MetricsCollector
	logger   *zap.Logger
}

var _ ChangeListener = (*Dispatcher)(nil)

// New creates a Dispatcher. q may be nil when background execution is
// disabled; mc may be nil to disable metrics.
func New(
	opts Options,
	client Client,
	res *resolver.Resolver,
	q queue.Queue,
	mc *metrics.MetricsCollector,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if client == nil && opts.Enabled {
		return nil, fmt.Errorf("client is required when purging is enabled")
	}
	if res == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if opts.Background && q == nil {
		return nil, fmt.Errorf("queue is required when background execution is enabled")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Dispatcher{
		opts:     opts,
		client:   client,
		resolver: res,
		queue:    q,
		metrics:  mc,
		logger:   logger,
	}, nil
}

// PurgeURLs purges the given URL set. In background mode the call returns
// immediately after scheduling; in sync mode it blocks until every batch
// completes and returns the aggregate outcome.
func (d *Dispatcher) PurgeURLs(ctx context.Context, urls []string) (*Outcome, error) {
	if !d.opts.Enabled {
		return d.skipped("urls")
	}

	urls = dedupe(urls)
	if len(urls) == 0 {
		d.logger.Warn("No URLs provided for purging")
		return &Outcome{Success: true}, nil
	}

	// Validate batching before scheduling so configuration mistakes are
	// reported synchronously even in background mode
	batches, err := batcher.Split(urls, d.opts.BatchSize)
	if err != nil {
		return nil, err
	}

	if d.opts.Background {
		return d.schedule(ctx, queue.Job{
			ID:        uuid.New().String(),
			Mode:      queue.ModeURLs,
			URLs:      urls,
			CreatedAt: time.Now().UTC(),
			NotBefore: time.Now().UTC().Add(d.opts.Delay),
		})
	}

	return d.deliverBatches(ctx, batches)
}

// PurgeEverything invalidates the entire zone cache. Never triggered
// implicitly by entity changes.
func (d *Dispatcher) PurgeEverything(ctx context.Context) (*Outcome, error) {
	if !d.opts.Enabled {
		return d.skipped("everything")
	}

	if d.opts.Background {
		return d.schedule(ctx, queue.Job{
			ID:        uuid.New().String(),
			Mode:      queue.ModeEverything,
			CreatedAt: time.Now().UTC(),
			NotBefore: time.Now().UTC().Add(d.opts.Delay),
		})
	}

	return d.deliverEverything(ctx)
}

// PurgeTags purges by cache tag. Surfaces the API's capability rejection on
// unsupported plans.
func (d *Dispatcher) PurgeTags(ctx context.Context, tags []string) (*Outcome, error) {
	if !d.opts.Enabled {
		return d.skipped("tags")
	}

	if len(tags) == 0 {
		d.logger.Warn("No tags provided for purging")
		return &Outcome{Success: true}, nil
	}

	if d.opts.Background {
		return d.schedule(ctx, queue.Job{
			ID:        uuid.New().String(),
			Mode:      queue.ModeTags,
			Tags:      tags,
			CreatedAt: time.Now().UTC(),
			NotBefore: time.Now().UTC().Add(d.opts.Delay),
		})
	}

	return d.deliverTags(ctx, tags)
}

// PurgeEntity resolves an entity to its URL set and purges it. An empty
// resolution is a no-op, not an error.
func (d *Dispatcher) PurgeEntity(ctx context.Context, entity resolver.Entity) (*Outcome, error) {
	if !d.opts.Enabled {
		return d.skipped("entity")
	}

	urls, err := d.resolver.Resolve(entity)
	if err != nil {
		return nil, err
	}

	if len(urls) == 0 {
		d.logger.Debug("No URLs to purge for entity",
			zap.String("entity_type", entity.EntityType()))
		return &Outcome{Success: true}, nil
	}

	return d.PurgeURLs(ctx, urls)
}

// OnEntityChanged implements ChangeListener for framework adapters.
// Unregistered entity types and empty resolutions are tolerated no-ops.
func (d *Dispatcher) OnEntityChanged(ctx context.Context, entity resolver.Entity) error {
	outcome, err := d.PurgeEntity(ctx, entity)
	if err != nil {
		d.logger.Error("Failed to purge cache for entity change",
			zap.String("entity_type", entity.EntityType()),
			zap.Error(err))
		return err
	}

	if outcome.Accepted {
		d.logger.Debug("Entity change purge scheduled",
			zap.String("entity_type", entity.EntityType()))
	}
	return nil
}

// QueueDepth reports the number of pending background entries
func (d *Dispatcher) QueueDepth(ctx context.Context) (int, error) {
	if d.queue == nil {
		return 0, nil
	}
	return d.queue.Depth(ctx)
}

// skipped returns the observable disabled no-op outcome
func (d *Dispatcher) skipped(mode string) (*Outcome, error) {
	d.logger.Info("Purging is disabled, skipping", zap.String("mode", mode))
	if d.metrics != nil {
		d.metrics.RecordPurgeRequest(mode, "skipped")
	}
	return &Outcome{Success: true, Skipped: true}, nil
}

// schedule hands a job to the background queue and returns immediately
func (d *Dispatcher) schedule(ctx context.Context, job queue.Job) (*Outcome, error) {
	if err := d.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to schedule purge job: %w", err)
	}

	d.logger.Debug("Scheduled background purge",
		zap.String("job_id", job.ID),
		zap.String("mode", string(job.Mode)),
		zap.Int("url_count", len(job.URLs)),
		zap.Time("not_before", job.NotBefore))

	if d.metrics != nil {
		d.metrics.RecordPurgeRequest(string(job.Mode), "accepted")
	}

	return &Outcome{Success: true, Accepted: true}, nil
}

// deliverBatches runs batches concurrently and aggregates outcomes.
// A failed batch does not abort the others; every batch is fully reported.
func (d *Dispatcher) deliverBatches(ctx context.Context, batches [][]string) (*Outcome, error) {
	startTime := time.Now().UTC()

	var wg sync.WaitGroup
	results := make(chan BatchOutcome, len(batches))

	for _, batch := range batches {
		wg.Add(1)
		go func(urls []string) {
			defer wg.Done()
			results <- d.deliverOneBatch(ctx, urls)
		}(batch)
	}

	wg.Wait()
	close(results)

	outcome := &Outcome{Success: true}
	urlCount := 0
	var firstErr error

	for res := range results {
		outcome.Batches = append(outcome.Batches, res)
		urlCount += len(res.URLs)
		if !res.Success {
			outcome.Success = false
			if firstErr == nil {
				firstErr = res.Err
			}
		}
	}

	duration := time.Since(startTime)
	if d.metrics != nil {
		d.metrics.RecordURLsPurged(urlCount)
		d.metrics.RecordDeliveryDuration(duration)
		if outcome.Success {
			d.metrics.RecordPurgeRequest("urls", "success")
		} else {
			d.metrics.RecordPurgeRequest("urls", "failure")
		}
	}

	if !outcome.Success {
		failed := len(outcome.FailedBatches())
		d.logger.Error("Purge completed with failures",
			zap.Int("total_batches", len(batches)),
			zap.Int("failed_batches", failed),
			zap.Duration("duration", duration))
		return outcome, fmt.Errorf("%d of %d purge batches failed: %w", failed, len(batches), firstErr)
	}

	d.logger.Info("Purge completed",
		zap.Int("batches", len(batches)),
		zap.Int("url_count", urlCount),
		zap.Duration("duration", duration))

	return outcome, nil
}

func (d *Dispatcher) deliverOneBatch(ctx context.Context, urls []string) BatchOutcome {
	result, err := d.client.PurgeURLs(ctx, urls)
	if err != nil {
		d.recordBatchError(err)
		return BatchOutcome{
			URLs:    urls,
			Success: false,
			Status:  statusOf(err),
			ErrKind: kindOf(err),
			Err:     err,
		}
	}

	if d.metrics != nil {
		d.metrics.RecordBatch("success")
	}
	return BatchOutcome{
		URLs:    urls,
		Success: true,
		Status:  result.StatusCode,
	}
}

func (d *Dispatcher) deliverEverything(ctx context.Context) (*Outcome, error) {
	result, err := d.client.PurgeEverything(ctx)
	return d.singleCallOutcome("everything", nil, result, err)
}

func (d *Dispatcher) deliverTags(ctx context.Context, tags []string) (*Outcome, error) {
	result, err := d.client.PurgeTags(ctx, tags)
	return d.singleCallOutcome("tags", tags, result, err)
}

func (d *Dispatcher) singleCallOutcome(mode string, payload []string, result *cloudflare.Result, err error) (*Outcome, error) {
	if err != nil {
		d.recordBatchError(err)
		if d.metrics != nil {
			d.metrics.RecordPurgeRequest(mode, "failure")
		}
		return &Outcome{
			Batches: []BatchOutcome{{
				URLs:    payload,
				Status:  statusOf(err),
				ErrKind: kindOf(err),
				Err:     err,
			}},
		}, err
	}

	if d.metrics != nil {
		d.metrics.RecordBatch("success")
		d.metrics.RecordPurgeRequest(mode, "success")
	}
	return &Outcome{
		Success: true,
		Batches: []BatchOutcome{{URLs: payload, Success: true, Status: result.StatusCode}},
	}, nil
}

func (d *Dispatcher) recordBatchError(err error) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordBatch("failure")
	d.metrics.RecordAPIError(string(kindOf(err)))
}

func statusOf(err error) int {
	if apiErr, ok := err.(*cloudflare.APIError); ok {
		return apiErr.StatusCode
	}
	return 0
}

func kindOf(err error) cloudflare.ErrKind {
	if apiErr, ok := err.(*cloudflare.APIError); ok {
		return apiErr.Kind
	}
	return cloudflare.ErrKindTransient
}

func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	result := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		result = append(result, u)
	}
	return result
}
