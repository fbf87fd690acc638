package resolver

// Entity is anything whose change can trigger cache invalidation.
// EntityType returns a stable identifier such as "blog.Post", matching the
// keys used in dependency-rule configuration and registration.
type Entity interface {
	EntityType() string
}

// Addressable is implemented by entities with a single canonical URL.
// The returned value may be an absolute URL or a site-relative path.
type Addressable interface {
	AbsoluteURL() (string, error)
}

// MultiAddressable is implemented by entities that expose several URLs of
// their own, such as change events delivered over the webhook API. It takes
// precedence over Addressable.
type MultiAddressable interface {
	AbsoluteURLs() ([]string, error)
}

// URLFunc produces the URLs (paths or absolute) for an entity instance.
// Registered per entity type to override the canonical-URL accessor.
type URLFunc func(Entity) ([]string, error)
