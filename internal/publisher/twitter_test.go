package publisher

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/metrics"
)

func fastRetry() RetryPolicy {
	return RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, MaxRetries: 3}
}

func TestTwitterCreatePost(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"1789","text":"hi"}}`))
	}))
	defer server.Close()

	c := NewTwitterClient(TwitterConfig{HTTPClient: server.Client(), APIURL: server.URL, Retry: fastRetry()})
	id, err := c.CreatePost(t.Context(), PostRequest{Text: "hi", MediaIDs: []string{"m1"}, InReplyToID: "1000"})
	require.NoError(t, err)
	assert.Equal(t, "1789", id)
	assert.Equal(t, "hi", got["text"])
	assert.Equal(t, map[string]any{"media_ids": []any{"m1"}}, got["media"])
	assert.Equal(t, map[string]any{"in_reply_to_tweet_id": "1000"}, got["reply"])
	assert.NotContains(t, got, "quote_tweet_id")
	assert.Equal(t, "https://x.com/i/web/status/1789", c.PostURL(id))
}

func TestTwitterRetriesRateLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	m := metrics.New()
	policy := fastRetry()
	c := NewTwitterClient(TwitterConfig{HTTPClient: server.Client(), APIURL: server.URL, Retry: policy, Metrics: m})

	_, err := c.CreatePost(t.Context(), PostRequest{Text: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, content.ErrRateLimited)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, int32(policy.MaxRetries+1), hits.Load())
}

func TestTwitterRecoversAfterRateLimit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"id":"42"}}`))
	}))
	defer server.Close()

	c := NewTwitterClient(TwitterConfig{HTTPClient: server.Client(), APIURL: server.URL, Retry: fastRetry()})
	id, err := c.CreatePost(t.Context(), PostRequest{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "42", id)
	assert.Equal(t, int32(3), hits.Load())
}

func TestTwitterDoesNotRetryServerError(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "duplicate content", http.StatusForbidden)
	}))
	defer server.Close()

	c := NewTwitterClient(TwitterConfig{HTTPClient: server.Client(), APIURL: server.URL, Retry: fastRetry()})
	_, err := c.CreatePost(t.Context(), PostRequest{Text: "hi"})
	require.Error(t, err)
	assert.ErrorIs(t, err, content.ErrExternalService)
	assert.NotErrorIs(t, err, content.ErrRateLimited)
	assert.Equal(t, int32(1), hits.Load())

	var svcErr *content.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, http.StatusForbidden, svcErr.StatusCode)
}

type uploadRecorder struct {
	mu       sync.Mutex
	commands []string
	segments []int
	bytes    int
	failAt   int
}

func (u *uploadRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		defer u.mu.Unlock()

		cmd := r.FormValue("command")
		u.commands = append(u.commands, cmd)
		switch cmd {
		case "INIT":
			assert.Equal(t, "10", r.FormValue("total_bytes"))
			assert.Equal(t, "image/png", r.FormValue("media_type"))
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(`{"media_id":77,"media_id_string":"77"}`))
		case "APPEND":
			assert.Equal(t, "77", r.FormValue("media_id"))
			index, err := strconv.Atoi(r.FormValue("segment_index"))
			require.NoError(t, err)
			u.segments = append(u.segments, index)
			if index == u.failAt {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			f, _, err := r.FormFile("media")
			require.NoError(t, err)
			data, err := io.ReadAll(f)
			require.NoError(t, err)
			u.bytes += len(data)
			w.WriteHeader(http.StatusNoContent)
		case "FINALIZE":
			assert.Equal(t, "77", r.FormValue("media_id"))
			_, _ = w.Write([]byte(`{"media_id_string":"77"}`))
		default:
			t.Errorf("unexpected command %q", cmd)
		}
	}
}

func TestTwitterUploadMedia(t *testing.T) {
	rec := &uploadRecorder{failAt: -1}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	c := NewTwitterClient(TwitterConfig{HTTPClient: server.Client(), UploadURL: server.URL, ChunkSize: 4, Retry: fastRetry()})
	id, err := c.UploadMedia(t.Context(), []byte("0123456789"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "77", id)
	assert.Equal(t, []string{"INIT", "APPEND", "APPEND", "APPEND", "FINALIZE"}, rec.commands)
	assert.Equal(t, []int{0, 1, 2}, rec.segments)
	assert.Equal(t, 10, rec.bytes)
}

func TestTwitterUploadMedia_ChunkFailureAborts(t *testing.T) {
	rec := &uploadRecorder{failAt: 1}
	server := httptest.NewServer(rec.handler(t))
	defer server.Close()

	c := NewTwitterClient(TwitterConfig{HTTPClient: server.Client(), UploadURL: server.URL, ChunkSize: 4, Retry: fastRetry()})
	_, err := c.UploadMedia(t.Context(), []byte("0123456789"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "media append 1")
	assert.Equal(t, []string{"INIT", "APPEND", "APPEND"}, rec.commands)
}

func TestTwitterChunkSizeCapped(t *testing.T) {
	c := NewTwitterClient(TwitterConfig{ChunkSize: 10 * MaxChunkSize})
	assert.Equal(t, MaxChunkSize, c.chunkSize)
}
