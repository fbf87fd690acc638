package api

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/purgeline/purged/internal/purge/cloudflare"
	"github.com/purgeline/purged/internal/purge/dispatcher"
	"github.com/purgeline/purged/internal/purge/queue"
	"github.com/purgeline/purged/internal/purge/resolver"
)

type countingClient struct {
	mu       sync.Mutex
	urlCalls [][]string
	allCalls int
	tagCalls [][]string
}

func (c *countingClient) PurgeURLs(ctx context.Context, urls []string) (*cloudflare.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.urlCalls = append(c.urlCalls, urls)
	return &cloudflare.Result{Success: true, StatusCode: 200}, nil
}

func (c *countingClient) PurgeEverything(ctx context.Context) (*cloudflare.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allCalls++
	return &cloudflare.Result{Success: true, StatusCode: 200}, nil
}

func (c *countingClient) PurgeTags(ctx context.Context, tags []string) (*cloudflare.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tagCalls = append(c.tagCalls, tags)
	return &cloudflare.Result{Success: true, StatusCode: 200}, nil
}

type testEnv struct {
	server  *Server
	client  *countingClient
	handler fasthttp.RequestHandler
}

func newTestEnv(t *testing.T, background bool, dedupWindow time.Duration) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	client := &countingClient{}
	registry := resolver.NewRegistry(logger)
	deps := map[string][]string{
		"blog.Post": {"/blog/", "/"},
	}
	res := resolver.NewResolver(registry, deps, "https://example.com", logger)

	var q queue.Queue
	if background {
		q = queue.NewMemoryQueue(100)
	}

	d, err := dispatcher.New(dispatcher.Options{
		Enabled:    true,
		Background: background,
		BatchSize:  30,
	}, client, res, q, nil, logger)
	require.NoError(t, err)

	server := NewServer("test-key", logger)
	handlers := NewPurgeHandlers(d, registry, true, background, time.Second, dedupWindow, logger)
	handlers.RegisterEndpoints(server)

	return &testEnv{server: server, client: client, handler: server.Handler()}
}

func (env *testEnv) request(method, path, authKey string, body []byte) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.SetRequestURI(path)
	ctx.Request.Header.SetMethod(method)
	if authKey != "" {
		ctx.Request.Header.Set("X-Internal-Auth", authKey)
	}
	if body != nil {
		ctx.Request.SetBody(body)
	}
	env.handler(ctx)
	return ctx
}

func decodeData(t *testing.T, ctx *fasthttp.RequestCtx) map[string]interface{} {
	t.Helper()
	var resp struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	return resp.Data
}

func TestServer_Authentication(t *testing.T) {
	env := newTestEnv(t, false, 0)

	t.Run("missing header", func(t *testing.T) {
		ctx := env.request("POST", PathPurgeEverything, "", nil)
		assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	})

	t.Run("wrong key", func(t *testing.T) {
		ctx := env.request("POST", PathPurgeEverything, "wrong", nil)
		assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	})

	t.Run("healthz is unauthenticated", func(t *testing.T) {
		ctx := env.request("GET", PathHealthz, "", nil)
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	})

	t.Run("unknown path", func(t *testing.T) {
		ctx := env.request("GET", "/internal/nope", "test-key", nil)
		assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	})

	t.Run("wrong method", func(t *testing.T) {
		ctx := env.request("GET", PathPurgeURLs, "test-key", nil)
		assert.Equal(t, fasthttp.StatusMethodNotAllowed, ctx.Response.StatusCode())
	})
}

func TestServer_PurgeURLs(t *testing.T) {
	t.Run("valid request purges", func(t *testing.T) {
		env := newTestEnv(t, false, 0)
		body, _ := json.Marshal(PurgeURLsRequest{URLs: []string{"https://example.com/a/"}})

		ctx := env.request("POST", PathPurgeURLs, "test-key", body)
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		require.Len(t, env.client.urlCalls, 1)
	})

	t.Run("malformed body", func(t *testing.T) {
		env := newTestEnv(t, false, 0)
		ctx := env.request("POST", PathPurgeURLs, "test-key", []byte("{not json"))
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("empty URL list", func(t *testing.T) {
		env := newTestEnv(t, false, 0)
		body, _ := json.Marshal(PurgeURLsRequest{})
		ctx := env.request("POST", PathPurgeURLs, "test-key", body)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	t.Run("background returns accepted", func(t *testing.T) {
		env := newTestEnv(t, true, 0)
		body, _ := json.Marshal(PurgeURLsRequest{URLs: []string{"https://example.com/a/"}})

		ctx := env.request("POST", PathPurgeURLs, "test-key", body)
		assert.Equal(t, fasthttp.StatusAccepted, ctx.Response.StatusCode())
		data := decodeData(t, ctx)
		assert.Equal(t, true, data["accepted"])
		assert.Empty(t, env.client.urlCalls)
	})
}

func TestServer_PurgeEverythingAndTags(t *testing.T) {
	t.Run("everything", func(t *testing.T) {
		env := newTestEnv(t, false, 0)
		ctx := env.request("POST", PathPurgeEverything, "test-key", nil)
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, 1, env.client.allCalls)
	})

	t.Run("tags", func(t *testing.T) {
		env := newTestEnv(t, false, 0)
		body, _ := json.Marshal(PurgeTagsRequest{Tags: []string{"homepage"}})
		ctx := env.request("POST", PathPurgeTags, "test-key", body)
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		require.Len(t, env.client.tagCalls, 1)
		assert.Equal(t, []string{"homepage"}, env.client.tagCalls[0])
	})

	t.Run("empty tag list", func(t *testing.T) {
		env := newTestEnv(t, false, 0)
		body, _ := json.Marshal(PurgeTagsRequest{})
		ctx := env.request("POST", PathPurgeTags, "test-key", body)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})
}

func TestServer_EntityEvents(t *testing.T) {
	t.Run("entity event purges own URLs plus dependencies", func(t *testing.T) {
		env := newTestEnv(t, false, time.Minute)
		body, _ := json.Marshal(EntityEventRequest{
			EntityType: "blog.Post",
			URLs:       []string{"/blog/my-post/"},
		})

		ctx := env.request("POST", PathPurgeEntity, "test-key", body)
		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		require.Len(t, env.client.urlCalls, 1)
		assert.Equal(t, []string{
			"https://example.com/blog/my-post/",
			"https://example.com/blog/",
			"https://example.com/",
		}, env.client.urlCalls[0])
	})

	t.Run("duplicate event inside window is dropped", func(t *testing.T) {
		env := newTestEnv(t, false, time.Minute)
		body, _ := json.Marshal(EntityEventRequest{
			EntityType: "blog.Post",
			URLs:       []string{"/blog/my-post/"},
		})

		first := env.request("POST", PathPurgeEntity, "test-key", body)
		assert.Equal(t, fasthttp.StatusOK, first.Response.StatusCode())

		second := env.request("POST", PathPurgeEntity, "test-key", body)
		assert.Equal(t, fasthttp.StatusOK, second.Response.StatusCode())
		data := decodeData(t, second)
		assert.Equal(t, true, data["deduped"])

		assert.Len(t, env.client.urlCalls, 1)
	})

	t.Run("different entities are not deduped", func(t *testing.T) {
		env := newTestEnv(t, false, time.Minute)

		bodyA, _ := json.Marshal(EntityEventRequest{EntityType: "blog.Post", URLs: []string{"/blog/a/"}})
		bodyB, _ := json.Marshal(EntityEventRequest{EntityType: "blog.Post", URLs: []string{"/blog/b/"}})

		env.request("POST", PathPurgeEntity, "test-key", bodyA)
		env.request("POST", PathPurgeEntity, "test-key", bodyB)

		assert.Len(t, env.client.urlCalls, 2)
	})

	t.Run("zero window disables dedup", func(t *testing.T) {
		env := newTestEnv(t, false, 0)
		body, _ := json.Marshal(EntityEventRequest{EntityType: "blog.Post", URLs: []string{"/blog/a/"}})

		env.request("POST", PathPurgeEntity, "test-key", body)
		env.request("POST", PathPurgeEntity, "test-key", body)

		assert.Len(t, env.client.urlCalls, 2)
	})

	t.Run("missing entity type", func(t *testing.T) {
		env := newTestEnv(t, false, 0)
		body, _ := json.Marshal(EntityEventRequest{URLs: []string{"/blog/a/"}})
		ctx := env.request("POST", PathPurgeEntity, "test-key", body)
		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})
}

func TestServer_Status(t *testing.T) {
	env := newTestEnv(t, true, 0)

	ctx := env.request("GET", PathStatus, "test-key", nil)
	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	data := decodeData(t, ctx)
	assert.Equal(t, true, data["purge_enabled"])
	assert.Equal(t, true, data["background"])
	assert.Equal(t, float64(0), data["queue_depth"])
}
