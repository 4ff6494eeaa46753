package publisher

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/recast/internal/content"
)

func TestHTTPRenderer(t *testing.T) {
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	defer server.Close()

	mux.HandleFunc("/render", func(w http.ResponseWriter, r *http.Request) {
		var req renderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, content.TypeCarouselPost, req.ContentType)
		require.Len(t, req.Slides, 2)
		_ = json.NewEncoder(w).Encode(renderResponse{Images: []string{server.URL + "/img/1.png", server.URL + "/img/2.png"}})
	})
	mux.HandleFunc("/img/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte(r.URL.Path))
	})

	r := NewHTTPRenderer(server.URL+"/render", server.Client())
	images, err := r.Render(t.Context(), content.Unit{
		Type: content.TypeCarouselPost,
		Items: []content.Item{
			{PostType: content.PostSlide, Heading: "A"},
			{PostType: content.PostSlide, Heading: "B", Subheading: "b"},
		},
	})
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "/img/2.png", string(images[1]))
}

func TestHTTPMediaSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("GIF89a-not-really"))
	}))
	defer server.Close()

	src := NewHTTPMediaSource(server.Client())
	data, mediaType, err := src.Fetch(t.Context(), server.URL+"/anim.gif")
	require.NoError(t, err)
	assert.Equal(t, "image/gif", mediaType)
	assert.NotEmpty(t, data)

	_, _, err = src.Fetch(t.Context(), server.URL+"/missing")
	assert.ErrorIs(t, err, content.ErrExternalService)
}
