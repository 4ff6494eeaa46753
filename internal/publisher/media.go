package publisher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abdulachik/recast/internal/content"
)

// MaxMediaBytes caps a single downloaded image or gif.
const MaxMediaBytes = 15 * 1024 * 1024

// MediaSource downloads media referenced by URL.
type MediaSource interface {
	Fetch(ctx context.Context, url string) (data []byte, mediaType string, err error)
}

// HTTPMediaSource downloads media over HTTP.
type HTTPMediaSource struct {
	httpClient *http.Client
}

// NewHTTPMediaSource creates a media source. A nil client gets a 30s timeout.
func NewHTTPMediaSource(client *http.Client) *HTTPMediaSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPMediaSource{httpClient: client}
}

// Fetch downloads url and sniffs its media type when the server omits it.
func (s *HTTPMediaSource) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &content.ServiceError{Service: "media", StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", url, err)
	}
	if len(data) > MaxMediaBytes {
		return nil, "", fmt.Errorf("%w: %s exceeds %d bytes", content.ErrConstraintViolation, url, MaxMediaBytes)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: %s is empty", content.ErrExternalService, url)
	}

	mediaType := resp.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}
	return data, mediaType, nil
}
