package cloudflare

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, baseURL string, maxRetries int) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIToken:       "test-token",
		ZoneID:         "test-zone",
		BaseURL:        baseURL,
		RequestTimeout: 5 * time.Second,
		MaxRetries:     maxRetries,
		RetryBaseDelay: time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func writeEnvelope(w http.ResponseWriter, status int, success bool, errors []APIMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": success,
		"errors":  errors,
		"result":  map[string]string{"id": "req-1"},
	})
}

func TestNewClient_Validation(t *testing.T) {
	t.Run("missing token is a configuration error", func(t *testing.T) {
		_, err := NewClient(Options{ZoneID: "z"}, zap.NewNop())
		require.Error(t, err)
		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, ErrKindConfiguration, apiErr.Kind)
	})

	t.Run("missing zone is a configuration error", func(t *testing.T) {
		_, err := NewClient(Options{APIToken: "t"}, zap.NewNop())
		require.Error(t, err)
		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, ErrKindConfiguration, apiErr.Kind)
	})
}

func TestPurgeURLs(t *testing.T) {
	t.Run("sends files payload with auth header", func(t *testing.T) {
		var gotAuth string
		var gotBody map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			assert.Equal(t, "/zones/test-zone/purge_cache", r.URL.Path)
			json.NewDecoder(r.Body).Decode(&gotBody)
			writeEnvelope(w, http.StatusOK, true, nil)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 0)
		result, err := client.PurgeURLs(context.Background(), []string{"https://example.com/a/"})
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, http.StatusOK, result.StatusCode)
		assert.Equal(t, "Bearer test-token", gotAuth)
		assert.Equal(t, []interface{}{"https://example.com/a/"}, gotBody["files"])
	})

	t.Run("empty URL set is rejected locally", func(t *testing.T) {
		client := newTestClient(t, "http://unused.invalid", 0)
		_, err := client.PurgeURLs(context.Background(), nil)
		require.Error(t, err)
		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, ErrKindValidation, apiErr.Kind)
	})

	t.Run("oversized batch is rejected locally", func(t *testing.T) {
		urls := make([]string, 31)
		for i := range urls {
			urls[i] = "https://example.com/"
		}
		client := newTestClient(t, "http://unused.invalid", 0)
		_, err := client.PurgeURLs(context.Background(), urls)
		require.Error(t, err)
		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, ErrKindValidation, apiErr.Kind)
	})

	t.Run("retries transient failures then succeeds", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := atomic.AddInt32(&calls, 1)
			if n <= 2 {
				writeEnvelope(w, http.StatusTooManyRequests, false, nil)
				return
			}
			writeEnvelope(w, http.StatusOK, true, nil)
		}))
		defer server.Close()

		retries := 0
		client := newTestClient(t, server.URL, 3)
		client.opts.OnRetry = func() { retries++ }

		result, err := client.PurgeURLs(context.Background(), []string{"https://example.com/a/"})
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
		assert.Equal(t, 2, retries)
	})

	t.Run("auth failure is not retried", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			writeEnvelope(w, http.StatusForbidden, false, []APIMessage{
				{Code: 10000, Message: "authentication error"},
			})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 3)
		_, err := client.PurgeURLs(context.Background(), []string{"https://example.com/a/"})
		require.Error(t, err)
		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, ErrKindAuth, apiErr.Kind)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("exhausted retries report delivery failure", func(t *testing.T) {
		var calls int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			writeEnvelope(w, http.StatusInternalServerError, false, nil)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 2)
		_, err := client.PurgeURLs(context.Background(), []string{"https://example.com/a/"})
		require.Error(t, err)
		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, ErrKindDeliveryFailed, apiErr.Kind)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	})

	t.Run("validation rejection from the API is surfaced", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusBadRequest, false, []APIMessage{
				{Code: 1099, Message: "unable to purge url outside zone"},
			})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 3)
		_, err := client.PurgeURLs(context.Background(), []string{"https://other.com/a/"})
		require.Error(t, err)
		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, ErrKindValidation, apiErr.Kind)
		assert.Contains(t, apiErr.Error(), "unable to purge url outside zone")
	})
}

func TestPurgeEverything(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, true, body["purge_everything"])
		writeEnvelope(w, http.StatusOK, true, nil)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	result, err := client.PurgeEverything(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestPurgeTags(t *testing.T) {
	t.Run("sends tags payload", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var body map[string]interface{}
			json.NewDecoder(r.Body).Decode(&body)
			assert.Equal(t, []interface{}{"homepage", "blog"}, body["tags"])
			writeEnvelope(w, http.StatusOK, true, nil)
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 0)
		_, err := client.PurgeTags(context.Background(), []string{"homepage", "blog"})
		require.NoError(t, err)
	})

	t.Run("plan rejection maps to capability unavailable", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusBadRequest, false, []APIMessage{
				{Code: 1107, Message: "purge by tag is only available for enterprise zones"},
			})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 3)
		_, err := client.PurgeTags(context.Background(), []string{"homepage"})
		require.Error(t, err)
		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, ErrKindCapabilityUnavailable, apiErr.Kind)
	})

	t.Run("empty tag set is rejected locally", func(t *testing.T) {
		client := newTestClient(t, "http://unused.invalid", 0)
		_, err := client.PurgeTags(context.Background(), nil)
		assert.Error(t, err)
	})
}

func TestVerifyToken(t *testing.T) {
	t.Run("reports token status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/user/tokens/verify", r.URL.Path)
			assert.Equal(t, http.MethodGet, r.Method)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"errors":  []APIMessage{},
				"result":  map[string]string{"id": "tok-1", "status": "active"},
			})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 0)
		status, err := client.VerifyToken(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", status.ID)
		assert.Equal(t, "active", status.Status)
	})

	t.Run("invalid token maps to auth error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeEnvelope(w, http.StatusUnauthorized, false, []APIMessage{
				{Code: 9109, Message: "invalid access token"},
			})
		}))
		defer server.Close()

		client := newTestClient(t, server.URL, 0)
		_, err := client.VerifyToken(context.Background())
		require.Error(t, err)
		apiErr, ok := err.(*APIError)
		require.True(t, ok)
		assert.Equal(t, ErrKindAuth, apiErr.Kind)
	})
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		errors   []APIMessage
		expected ErrKind
	}{
		{"401 is auth", 401, nil, ErrKindAuth},
		{"403 is auth", 403, nil, ErrKindAuth},
		{"429 is transient", 429, nil, ErrKindTransient},
		{"500 is transient", 500, nil, ErrKindTransient},
		{"503 is transient", 503, nil, ErrKindTransient},
		{"400 is validation", 400, nil, ErrKindValidation},
		{"auth code beats status", 400, []APIMessage{{Code: 10000}}, ErrKindAuth},
		{"invalid token code beats status", 400, []APIMessage{{Code: 9109}}, ErrKindAuth},
		{"tag capability code", 400, []APIMessage{{Code: 1107}}, ErrKindCapabilityUnavailable},
		{"rate limit code is transient", 400, []APIMessage{{Code: 971}}, ErrKindTransient},
		{"success false without code is validation", 200, nil, ErrKindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyStatus(tt.status, tt.errors))
		})
	}
}

func TestErrKindRetryable(t *testing.T) {
	assert.True(t, ErrKindTransient.Retryable())
	assert.False(t, ErrKindAuth.Retryable())
	assert.False(t, ErrKindValidation.Retryable())
	assert.False(t, ErrKindConfiguration.Retryable())
	assert.False(t, ErrKindDeliveryFailed.Retryable())
	assert.False(t, ErrKindCapabilityUnavailable.Retryable())
}
