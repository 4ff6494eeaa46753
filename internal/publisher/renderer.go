package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abdulachik/recast/internal/content"
)

// SlideRenderer turns carousel slides into images, one per slide.
type SlideRenderer interface {
	Render(ctx context.Context, u content.Unit) ([][]byte, error)
}

// HTTPRenderer calls an external rendering service that answers with the
// URLs of the rendered slide images.
type HTTPRenderer struct {
	httpClient *http.Client
	url        string
	media      MediaSource
}

// NewHTTPRenderer creates a renderer posting to url.
func NewHTTPRenderer(url string, client *http.Client) *HTTPRenderer {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	return &HTTPRenderer{httpClient: client, url: url, media: NewHTTPMediaSource(client)}
}

type renderSlide struct {
	Heading    string `json:"heading"`
	Subheading string `json:"subheading,omitempty"`
}

type renderRequest struct {
	ContentType content.Type  `json:"content_type"`
	Slides      []renderSlide `json:"slides"`
}

type renderResponse struct {
	Images []string `json:"images"`
}

// Render posts the slides and downloads every returned image.
func (r *HTTPRenderer) Render(ctx context.Context, u content.Unit) ([][]byte, error) {
	body := renderRequest{ContentType: u.Type}
	for _, it := range u.Items {
		body.Slides = append(body.Slides, renderSlide{Heading: it.Heading, Subheading: it.Subheading})
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &content.ServiceError{Service: "renderer", StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var out renderResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(out.Images) == 0 {
		return nil, fmt.Errorf("%w: renderer returned no images", content.ErrExternalService)
	}

	images := make([][]byte, 0, len(out.Images))
	for _, url := range out.Images {
		data, _, err := r.media.Fetch(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("download slide: %w", err)
		}
		images = append(images, data)
	}
	return images, nil
}
