package resolver

import (
	"go.uber.org/zap"
)

// Registry tracks entity types registered for cache purging and their
// optional custom URL functions. It is populated during application wiring
// and read-only once traffic begins, so reads are not locked.
type Registry struct {
	urlFuncs map[string]URLFunc
	logger   *zap.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		urlFuncs: make(map[string]URLFunc),
		logger:   logger,
	}
}

// Register records an entity type for purging. A nil fn means the entity's
// own canonical-URL accessor is used. Re-registration overwrites.
func (r *Registry) Register(entityType string, fn URLFunc) {
	if _, exists := r.urlFuncs[entityType]; exists {
		r.logger.Warn("Overwriting existing entity registration",
			zap.String("entity_type", entityType))
	}

	r.urlFuncs[entityType] = fn
	r.logger.Debug("Registered entity type for cache purging",
		zap.String("entity_type", entityType))
}

// Unregister removes an entity type from the registry
func (r *Registry) Unregister(entityType string) {
	delete(r.urlFuncs, entityType)
	r.logger.Debug("Unregistered entity type", zap.String("entity_type", entityType))
}

// IsRegistered reports whether an entity type is registered
func (r *Registry) IsRegistered(entityType string) bool {
	_, ok := r.urlFuncs[entityType]
	return ok
}

// URLFunc returns the custom URL function for an entity type, nil if the
// type is unregistered or registered without one
func (r *Registry) URLFunc(entityType string) URLFunc {
	return r.urlFuncs[entityType]
}

// RegisteredTypes returns all registered entity type identifiers
func (r *Registry) RegisteredTypes() []string {
	types := make([]string, 0, len(r.urlFuncs))
	for t := range r.urlFuncs {
		types = append(types, t)
	}
	return types
}
