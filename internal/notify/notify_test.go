package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogNotifier_Send(t *testing.T) {
	n := NewLogNotifier()
	assert.NoError(t, n.Send(context.Background(), Notification{Subject: "run done", Success: true}))
	assert.NoError(t, n.Send(context.Background(), Notification{Subject: "run failed"}))
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got webhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL, HTTPClient: server.Client()})
	err := n.Send(context.Background(), Notification{
		Subject:  "Run published",
		Body:     "3 units",
		RunID:    "run-1",
		Status:   "published",
		Success:  true,
		PostURLs: []string{"https://x.com/i/web/status/1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Run published\n3 units", got.Text)
	assert.Equal(t, "run-1", got.RunID)
	assert.True(t, got.Success)
	assert.Len(t, got.PostURLs, 1)
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewWebhookNotifier(WebhookConfig{URL: server.URL})
	err := n.Send(context.Background(), Notification{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type failing struct{ err error }

func (f failing) Send(context.Context, Notification) error { return f.err }

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	var calls int
	counting := notifierFunc(func(context.Context, Notification) error { calls++; return nil })

	err := Multi{failing{boom}, nil, counting}.Send(context.Background(), Notification{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)

	assert.NoError(t, Multi{counting}.Send(context.Background(), Notification{}))
}

type notifierFunc func(context.Context, Notification) error

func (f notifierFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }
