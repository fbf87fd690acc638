// Package batcher splits URL sets into CDN-API-sized chunks.
package batcher

import (
	"fmt"

	"github.com/purgeline/purged/internal/common/configtypes"
)

// Split groups urls into batches of at most maxBatchSize. The input order is
// preserved but carries no purge semantics. Empty input yields zero batches.
// A non-positive ceiling or one above the Cloudflare per-call limit is a
// configuration mistake and fails fast rather than silently truncating.
func Split(urls []string, maxBatchSize int) ([][]string, error) {
	if maxBatchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive, got %d", maxBatchSize)
	}
	if maxBatchSize > configtypes.CloudflareMaxFilesPerCall {
		return nil, fmt.Errorf("batch size %d exceeds the Cloudflare per-call limit of %d",
			maxBatchSize, configtypes.CloudflareMaxFilesPerCall)
	}

	if len(urls) == 0 {
		return nil, nil
	}

	batches := make([][]string, 0, (len(urls)+maxBatchSize-1)/maxBatchSize)
	for start := 0; start < len(urls); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(urls) {
			end = len(urls)
		}
		batches = append(batches, urls[start:end])
	}

	return batches, nil
}
