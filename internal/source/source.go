// Package source fetches a newsletter edition and reduces it to the text,
// canonical URL, thumbnail and outbound links the pipeline works from.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/abdulachik/recast/internal/content"
)

// MaxPageBytes caps a downloaded edition.
const MaxPageBytes = 10 * 1024 * 1024

// Article is an extracted newsletter edition. ContentText keeps inline
// images as content.ImagePlaceholder markers.
type Article struct {
	Title        string
	ContentText  string
	CanonicalURL string
	ThumbnailURL string
	Links        []content.Link
}

// Provider fetches an edition by URL.
type Provider interface {
	Fetch(ctx context.Context, editionURL string) (*Article, error)
}

// HTTPProvider downloads the public web page of an edition.
type HTTPProvider struct {
	httpClient *http.Client
	userAgent  string
}

// HTTPConfig holds configuration for the HTTP provider.
type HTTPConfig struct {
	HTTPClient *http.Client
	UserAgent  string
}

// NewHTTPProvider creates a provider for public edition pages.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	p := &HTTPProvider{httpClient: cfg.HTTPClient, userAgent: cfg.UserAgent}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if p.userAgent == "" {
		p.userAgent = "recast/1.0 (+https://github.com/abdulachik/recast)"
	}
	return p
}

// Fetch downloads editionURL and extracts it.
func (p *HTTPProvider) Fetch(ctx context.Context, editionURL string) (*Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, editionURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: edition url: %v", content.ErrConfiguration, err)
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch edition: %w: %v", content.ErrExternalService, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read edition: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &content.ServiceError{Service: "source", StatusCode: resp.StatusCode, Body: string(data)}
	}

	finalURL := editionURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return Parse(data, finalURL)
}

func trimText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
