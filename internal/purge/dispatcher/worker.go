package dispatcher

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/purgeline/purged/internal/purge/batcher"
	"github.com/purgeline/purged/internal/purge/queue"
)

// Worker drains the background queue on a fixed tick and delivers due jobs
// through the dispatcher's client. One worker per daemon process.
type Worker struct {
	dispatcher   *Dispatcher
	queue        queue.Queue
	tickInterval time.Duration
	popLimit     int
	logger       *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorker creates a background delivery worker. popLimit caps the number of
// queue entries drained per tick.
func NewWorker(d *Dispatcher, q queue.Queue, tickInterval time.Duration, popLimit int, logger *zap.Logger) *Worker {
	if popLimit <= 0 {
		popLimit = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		dispatcher:   d,
		queue:        q,
		tickInterval: tickInterval,
		popLimit:     popLimit,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the worker loop
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.run()

	w.logger.Info("Purge worker started",
		zap.Duration("tick_interval", w.tickInterval),
		zap.Int("pop_limit", w.popLimit))
}

// Shutdown stops the worker and waits for the in-flight tick to finish
func (w *Worker) Shutdown() {
	w.logger.Info("Shutting down purge worker")
	w.cancel()
	w.wg.Wait()
	w.logger.Info("Purge worker stopped")
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

// tick drains due jobs and delivers them. Delivery failures are logged and
// counted; the retry policy lives in the CDN client, so a job popped here is
// not re-enqueued.
func (w *Worker) tick() {
	now := time.Now().UTC()

	jobs, err := w.queue.PopDue(w.ctx, now, w.popLimit)
	if err != nil {
		w.logger.Error("Failed to pop due purge jobs", zap.Error(err))
		return
	}

	for _, job := range jobs {
		w.deliver(job)
	}

	depth, err := w.queue.Depth(w.ctx)
	if err != nil {
		w.logger.Warn("Failed to read queue depth", zap.Error(err))
	} else if w.dispatcher.metrics != nil {
		w.dispatcher.metrics.SetQueueDepth(depth)
	}
}

func (w *Worker) deliver(job queue.Job) {
	w.logger.Debug("Delivering background purge job",
		zap.String("job_id", job.ID),
		zap.String("mode", string(job.Mode)),
		zap.Int("url_count", len(job.URLs)))

	var err error
	switch job.Mode {
	case queue.ModeURLs:
		var batches [][]string
		batches, err = batcher.Split(job.URLs, w.dispatcher.opts.BatchSize)
		if err == nil {
			_, err = w.dispatcher.deliverBatches(w.ctx, batches)
		}
	case queue.ModeEverything:
		_, err = w.dispatcher.deliverEverything(w.ctx)
	case queue.ModeTags:
		_, err = w.dispatcher.deliverTags(w.ctx, job.Tags)
	default:
		w.logger.Warn("Discarding job with unknown mode",
			zap.String("job_id", job.ID),
			zap.String("mode", string(job.Mode)))
		return
	}

	if err != nil {
		w.logger.Error("Background purge job failed",
			zap.String("job_id", job.ID),
			zap.String("mode", string(job.Mode)),
			zap.Error(err))
	}
}
