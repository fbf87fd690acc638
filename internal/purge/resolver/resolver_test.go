package resolver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testPost struct {
	slug string
	err  error
}

func (p testPost) EntityType() string { return "blog.Post" }

func (p testPost) AbsoluteURL() (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "/blog/" + p.slug + "/", nil
}

type testGallery struct {
	urls []string
}

func (g testGallery) EntityType() string { return "media.Gallery" }

func (g testGallery) AbsoluteURLs() ([]string, error) { return g.urls, nil }

type plainEntity struct{ typ string }

func (e plainEntity) EntityType() string { return e.typ }

func TestResolver_Resolve(t *testing.T) {
	logger := zap.NewNop()

	t.Run("nil entity is an error", func(t *testing.T) {
		r := NewResolver(NewRegistry(logger), nil, "", logger)
		_, err := r.Resolve(nil)
		assert.Error(t, err)
	})

	t.Run("entity URL plus dependencies", func(t *testing.T) {
		deps := map[string][]string{
			"blog.Post": {"/blog/", "/"},
		}
		r := NewResolver(NewRegistry(logger), deps, "https://example.com", logger)

		urls, err := r.Resolve(testPost{slug: "my-post"})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://example.com/blog/my-post/",
			"https://example.com/blog/",
			"https://example.com/",
		}, urls)
	})

	t.Run("entity without accessors resolves to dependencies only", func(t *testing.T) {
		deps := map[string][]string{
			"shop.Product": {"/shop/"},
		}
		r := NewResolver(NewRegistry(logger), deps, "https://example.com", logger)

		urls, err := r.Resolve(plainEntity{typ: "shop.Product"})
		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/shop/"}, urls)
	})

	t.Run("no URL and no dependencies resolves to empty set", func(t *testing.T) {
		r := NewResolver(NewRegistry(logger), nil, "https://example.com", logger)

		urls, err := r.Resolve(plainEntity{typ: "auth.Session"})
		require.NoError(t, err)
		assert.Empty(t, urls)
	})

	t.Run("accessor failure still purges dependencies", func(t *testing.T) {
		deps := map[string][]string{
			"blog.Post": {"/blog/"},
		}
		r := NewResolver(NewRegistry(logger), deps, "https://example.com", logger)

		urls, err := r.Resolve(testPost{err: fmt.Errorf("no published page")})
		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/blog/"}, urls)
	})

	t.Run("multi-addressable entity contributes all URLs", func(t *testing.T) {
		r := NewResolver(NewRegistry(logger), nil, "https://example.com", logger)

		urls, err := r.Resolve(testGallery{urls: []string{"/gallery/1/", "/gallery/1/slideshow/"}})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://example.com/gallery/1/",
			"https://example.com/gallery/1/slideshow/",
		}, urls)
	})

	t.Run("duplicates are removed preserving order", func(t *testing.T) {
		deps := map[string][]string{
			"blog.Post": {"/blog/my-post/", "/blog/", "/blog/"},
		}
		r := NewResolver(NewRegistry(logger), deps, "https://example.com", logger)

		urls, err := r.Resolve(testPost{slug: "my-post"})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://example.com/blog/my-post/",
			"https://example.com/blog/",
		}, urls)
	})

	t.Run("custom URL function overrides accessors", func(t *testing.T) {
		registry := NewRegistry(logger)
		registry.Register("blog.Post", func(e Entity) ([]string, error) {
			return []string{"/custom/"}, nil
		})
		r := NewResolver(registry, nil, "https://example.com", logger)

		urls, err := r.Resolve(testPost{slug: "ignored"})
		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/custom/"}, urls)
	})

	t.Run("custom URL function failure is surfaced", func(t *testing.T) {
		registry := NewRegistry(logger)
		registry.Register("blog.Post", func(e Entity) ([]string, error) {
			return nil, fmt.Errorf("bad lookup")
		})
		r := NewResolver(registry, nil, "https://example.com", logger)

		_, err := r.Resolve(testPost{slug: "my-post"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "blog.Post")
	})

	t.Run("absolute URLs pass through unchanged", func(t *testing.T) {
		r := NewResolver(NewRegistry(logger), nil, "https://example.com", logger)

		urls, err := r.Resolve(testGallery{urls: []string{"https://cdn.example.com/a.jpg"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"https://cdn.example.com/a.jpg"}, urls)
	})

	t.Run("without site URL paths pass through", func(t *testing.T) {
		r := NewResolver(NewRegistry(logger), nil, "", logger)

		urls, err := r.Resolve(testPost{slug: "my-post"})
		require.NoError(t, err)
		assert.Equal(t, []string{"/blog/my-post/"}, urls)
	})

	t.Run("trailing slash on site URL is normalized", func(t *testing.T) {
		r := NewResolver(NewRegistry(logger), nil, "https://example.com/", logger)

		urls, err := r.Resolve(testPost{slug: "my-post"})
		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/blog/my-post/"}, urls)
	})
}

func TestRegistry(t *testing.T) {
	logger := zap.NewNop()

	t.Run("register and lookup", func(t *testing.T) {
		registry := NewRegistry(logger)
		assert.False(t, registry.IsRegistered("blog.Post"))

		registry.Register("blog.Post", func(e Entity) ([]string, error) { return nil, nil })
		assert.True(t, registry.IsRegistered("blog.Post"))
		assert.NotNil(t, registry.URLFunc("blog.Post"))
	})

	t.Run("unregister", func(t *testing.T) {
		registry := NewRegistry(logger)
		registry.Register("blog.Post", func(e Entity) ([]string, error) { return nil, nil })
		registry.Unregister("blog.Post")
		assert.False(t, registry.IsRegistered("blog.Post"))
		assert.Nil(t, registry.URLFunc("blog.Post"))
	})

	t.Run("registered types", func(t *testing.T) {
		registry := NewRegistry(logger)
		registry.Register("blog.Post", func(e Entity) ([]string, error) { return nil, nil })
		registry.Register("shop.Product", func(e Entity) ([]string, error) { return nil, nil })

		types := registry.RegisteredTypes()
		assert.ElementsMatch(t, []string{"blog.Post", "shop.Product"}, types)
	})
}
