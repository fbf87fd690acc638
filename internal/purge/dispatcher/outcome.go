package dispatcher

import (
	"github.com/purgeline/purged/internal/purge/cloudflare"
)

// BatchOutcome is the result of delivering one batch to the CDN
type BatchOutcome struct {
	URLs    []string
	Success bool
	Status  int
	ErrKind cloudflare.ErrKind
	Err     error
}

// Outcome is the aggregate result of one dispatch call.
// Skipped is set when purging is disabled and no CDN call was made.
// Accepted is set when the job was handed to the background queue; delivery
// results are then only observable via logging and metrics.
type Outcome struct {
	Success  bool
	Skipped  bool
	Accepted bool
	Batches  []BatchOutcome
}

// FailedBatches returns the outcomes of batches that did not succeed
func (o *Outcome) FailedBatches() []BatchOutcome {
	var failed []BatchOutcome
	for _, b := range o.Batches {
		if !b.Success {
			failed = append(failed, b)
		}
	}
	return failed
}
