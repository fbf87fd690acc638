package redis

import "fmt"

// KeyGenerator provides Redis key generation for purge queue operations
type KeyGenerator struct{}

// NewKeyGenerator creates a new KeyGenerator instance
func NewKeyGenerator() *KeyGenerator {
	return &KeyGenerator{}
}

// PendingURLsKey returns the ZSET key holding pending purge URLs for a zone,
// scored by due time (unix milliseconds). Members are the URLs themselves,
// so duplicate submissions coalesce.
// Format: purge:pending:{zoneID}
func (kg *KeyGenerator) PendingURLsKey(zoneID string) string {
	return fmt.Sprintf("purge:pending:%s", zoneID)
}

// PendingJobsKey returns the ZSET key holding pending non-URL purge jobs
// (purge-everything, purge-by-tag) for a zone, scored by due time.
// Members are JSON-encoded jobs.
// Format: purge:jobs:{zoneID}
func (kg *KeyGenerator) PendingJobsKey(zoneID string) string {
	return fmt.Sprintf("purge:jobs:%s", zoneID)
}
