package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/recast/internal/content"
)

func newClaudeServer(t *testing.T, handler http.HandlerFunc) *ClaudeClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClaudeClient(ClaudeConfig{APIKey: "test-api-key", BaseURL: server.URL})
}

func TestClaudeClient_Complete(t *testing.T) {
	t.Run("successful completion", func(t *testing.T) {
		client := newClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "test-api-key", r.Header.Get("x-api-key"))
			assert.Equal(t, claudeAPIVersion, r.Header.Get("anthropic-version"))

			var req claudeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "be terse", req.System)
			require.Len(t, req.Messages, 1)
			assert.Equal(t, "hello", req.Messages[0].Content)

			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(claudeResponse{
				ID:      "msg_123",
				Type:    "message",
				Role:    "assistant",
				Content: []claudeContent{{Type: "text", Text: "Hello, "}, {Type: "text", Text: "world!"}},
			})
		})

		got, err := client.Complete(context.Background(), "be terse", "hello")
		require.NoError(t, err)
		assert.Equal(t, "Hello, world!", got)
	})

	t.Run("rate limited", func(t *testing.T) {
		client := newClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"type":"error"}`))
		})

		_, err := client.Complete(context.Background(), "", "hi")
		assert.ErrorIs(t, err, content.ErrExternalService)
		assert.ErrorIs(t, err, content.ErrRateLimited)
	})

	t.Run("error body", func(t *testing.T) {
		client := newClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error":{"type":"overloaded_error","message":"busy"}}`))
		})

		_, err := client.Complete(context.Background(), "", "hi")
		var svcErr *content.ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Contains(t, svcErr.Body, "overloaded_error")
	})

	t.Run("empty content", func(t *testing.T) {
		client := newClaudeServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"content":[]}`))
		})

		_, err := client.Complete(context.Background(), "", "hi")
		assert.ErrorIs(t, err, content.ErrExternalService)
	})
}

func TestWithTimeout(t *testing.T) {
	slow := CompleteFunc(func(ctx context.Context, system, user string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	_, err := WithTimeout(slow, 10*time.Millisecond).Complete(context.Background(), "", "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("anthropic", func(t *testing.T) {
		c, err := New(ctx, Config{Provider: ProviderAnthropic, AnthropicAPIKey: "k"})
		require.NoError(t, err)
		assert.IsType(t, &ClaudeClient{}, c)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := New(ctx, Config{Provider: ProviderGemini})
		assert.ErrorIs(t, err, content.ErrConfiguration)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := New(ctx, Config{Provider: "mystery", AnthropicAPIKey: "k"})
		assert.ErrorIs(t, err, content.ErrConfiguration)
	})
}
