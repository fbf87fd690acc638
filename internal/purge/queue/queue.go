// Package queue holds pending background purge jobs until their scheduled
// start time.
package queue

import (
	"context"
	"time"
)

// Mode identifies what a purge job invalidates
type Mode string

const (
	ModeURLs       Mode = "urls"
	ModeEverything Mode = "everything"
	ModeTags       Mode = "tags"
)

// Job is the unit of background purge work. Consumed exactly once by the
// worker; a job not yet executed is lost on process crash with the memory
// backend (purges are a best-effort freshness optimization, not a
// correctness requirement).
type Job struct {
	ID        string    `json:"id"`
	Mode      Mode      `json:"mode"`
	URLs      []string  `json:"urls,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	NotBefore time.Time `json:"not_before"`
}

// Queue is a scheduled pending-purge store. URL jobs coalesce: URLs
// submitted while earlier ones are still pending merge into one set, keeping
// the earliest due time, so bursts of entity saves produce one API call per
// batch instead of one per save.
type Queue interface {
	// Enqueue adds a job. URL jobs merge into the pending URL set.
	Enqueue(ctx context.Context, job Job) error

	// PopDue removes and returns jobs whose NotBefore is at or before now.
	// Coalesced URLs come back as a single ModeURLs job. limit bounds the
	// number of URLs and discrete jobs taken per call.
	PopDue(ctx context.Context, now time.Time, limit int) ([]Job, error)

	// Depth returns the number of pending URLs plus discrete jobs.
	Depth(ctx context.Context) (int, error)
}
