package resolver

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Resolver maps a changed entity to the set of URLs requiring invalidation:
// the entity's own URL(s) plus every dependent URL configured for its type.
type Resolver struct {
	registry     *Registry
	dependencies map[string][]string
	siteURL      string
	logger       *zap.Logger
}

// NewResolver creates a resolver. dependencies maps entity type identifiers
// to dependent URL paths; siteURL is the base used to absolutize relative
// paths (may be empty, in which case paths are returned as-is). Both are
// read-only after construction.
func NewResolver(registry *Registry, dependencies map[string][]string, siteURL string, logger *zap.Logger) *Resolver {
	return &Resolver{
		registry:     registry,
		dependencies: dependencies,
		siteURL:      strings.TrimRight(siteURL, "/"),
		logger:       logger,
	}
}

// Resolve returns the deduplicated URL set to purge for an entity change.
// An entity with no obtainable URL of its own and no dependency rules
// resolves to an empty set, not an error. A registered URL function that
// fails is a validation failure surfaced to the caller.
func (r *Resolver) Resolve(entity Entity) ([]string, error) {
	if entity == nil {
		return nil, fmt.Errorf("entity is nil")
	}

	entityType := entity.EntityType()
	var urls []string

	if fn := r.registry.URLFunc(entityType); fn != nil {
		custom, err := fn(entity)
		if err != nil {
			return nil, fmt.Errorf("custom URL function for %s failed: %w", entityType, err)
		}
		for _, u := range custom {
			urls = append(urls, r.absolutize(u))
		}
	} else {
		own, err := r.ownURLs(entity)
		if err != nil {
			// No addressable page is valid; purge dependencies only
			r.logger.Warn("Failed to get URL for entity",
				zap.String("entity_type", entityType),
				zap.Error(err))
		}
		urls = append(urls, own...)
	}

	for _, dep := range r.dependencies[entityType] {
		urls = append(urls, r.absolutize(dep))
	}

	deduped := dedupe(urls)

	r.logger.Debug("Resolved entity to URL set",
		zap.String("entity_type", entityType),
		zap.Int("url_count", len(deduped)))

	return deduped, nil
}

// ownURLs extracts the entity's own URL(s) via its accessors
func (r *Resolver) ownURLs(entity Entity) ([]string, error) {
	if ma, ok := entity.(MultiAddressable); ok {
		raw, err := ma.AbsoluteURLs()
		if err != nil {
			return nil, err
		}
		urls := make([]string, 0, len(raw))
		for _, u := range raw {
			urls = append(urls, r.absolutize(u))
		}
		return urls, nil
	}

	if a, ok := entity.(Addressable); ok {
		raw, err := a.AbsoluteURL()
		if err != nil {
			return nil, err
		}
		return []string{r.absolutize(raw)}, nil
	}

	return nil, nil
}

// absolutize joins a site-relative path with the configured base URL.
// Already-absolute URLs pass through; without a base URL paths pass through.
func (r *Resolver) absolutize(u string) string {
	if strings.Contains(u, "://") || r.siteURL == "" {
		return u
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return r.siteURL + u
}

// dedupe removes duplicates preserving first-seen order
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
