package relevance

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"golang.org/x/net/html"
	"golang.org/x/sync/singleflight"

	"github.com/abdulachik/recast/internal/metrics"
)

// Metadata kinds.
const (
	KindArticle   = "article"
	KindSocial    = "social"
	KindFinancial = "financial"
	KindBasic     = "basic"
)

const (
	maxPageBytes  = 2 << 20
	previewChars  = 300
	scrapeTimeout = 15 * time.Second
)

// Metadata is the lightweight description of a candidate link.
type Metadata struct {
	URL         string `json:"url"`
	Kind        string `json:"kind"`
	Platform    string `json:"platform,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Image       string `json:"image,omitempty"`
	Preview     string `json:"preview,omitempty"`
}

type handler func(u *url.URL) Metadata

func social(platform string) handler {
	return func(u *url.URL) Metadata {
		return Metadata{URL: u.String(), Kind: KindSocial, Platform: platform}
	}
}

func financial(u *url.URL) Metadata {
	return Metadata{URL: u.String(), Kind: KindFinancial, Platform: "financial"}
}

// platformHandlers short-circuit scraping for known domains. Keys match the
// host or any parent domain.
var platformHandlers = map[string]handler{
	"twitter.com":       social("twitter"),
	"x.com":             social("twitter"),
	"linkedin.com":      social("linkedin"),
	"finance.yahoo.com": financial,
	"seekingalpha.com":  financial,
	"bloomberg.com":     financial,
}

func lookupHandler(host string) (handler, bool) {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for {
		if h, ok := platformHandlers[host]; ok {
			return h, true
		}
		dot := strings.IndexByte(host, '.')
		if dot == -1 {
			return nil, false
		}
		host = host[dot+1:]
	}
}

// Fetcher resolves link metadata with a cache in front and duplicate
// suppression for concurrent lookups of the same URL.
type Fetcher struct {
	httpClient *http.Client
	cache      Cache
	metrics    *metrics.Metrics
	group      singleflight.Group
}

// FetcherConfig holds configuration for a Fetcher.
type FetcherConfig struct {
	HTTPClient *http.Client
	Cache      Cache
	Metrics    *metrics.Metrics
}

// NewFetcher creates a Fetcher. A nil Cache uses a MemoryCache.
func NewFetcher(cfg FetcherConfig) *Fetcher {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheTTL)
	}
	return &Fetcher{httpClient: client, cache: cache, metrics: cfg.Metrics}
}

// Fetch returns metadata for rawURL.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Metadata, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Metadata{}, fmt.Errorf("invalid link url %q", rawURL)
	}
	if h, ok := lookupHandler(u.Host); ok {
		return h(u), nil
	}

	if md, ok, err := f.cache.Get(ctx, rawURL); err != nil {
		slog.Warn("link cache get failed", "url", rawURL, "error", err)
	} else if ok {
		f.metrics.ObserveCacheLookup(true)
		return md, nil
	}
	f.metrics.ObserveCacheLookup(false)

	// The shared scrape outlives any one caller so a cancelled caller does
	// not fail the others waiting on the same link.
	ch := f.group.DoChan(rawURL, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), scrapeTimeout)
		defer cancel()
		md, err := f.scrape(sctx, u)
		if err != nil {
			return Metadata{}, err
		}
		if err := f.cache.Set(sctx, rawURL, md); err != nil {
			slog.Warn("link cache set failed", "url", rawURL, "error", err)
		}
		return md, nil
	})
	select {
	case <-ctx.Done():
		return Metadata{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Metadata{}, res.Err
		}
		return res.Val.(Metadata), nil
	}
}

func (f *Fetcher) scrape(ctx context.Context, u *url.URL) (Metadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "recast/1.0 (+link preview)")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetch link: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Metadata{}, fmt.Errorf("fetch link: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Metadata{}, fmt.Errorf("read link body: %w", err)
	}
	return ParsePage(data, u), nil
}

// ParsePage builds metadata from a fetched page. It prefers readability's
// article extraction and falls back to the title and meta tags.
func ParsePage(data []byte, u *url.URL) Metadata {
	basic := parseMeta(data)
	basic.URL = u.String()

	article, err := readability.FromReader(bytes.NewReader(data), u)
	if err != nil || article.Node == nil {
		basic.Kind = KindBasic
		return basic
	}

	md := basic
	md.Kind = KindArticle
	if title := strings.TrimSpace(article.Title()); title != "" {
		md.Title = title
	}
	var buf bytes.Buffer
	if err := article.RenderText(&buf); err == nil {
		md.Preview = truncateRunes(strings.Join(strings.Fields(buf.String()), " "), previewChars)
	}
	if md.Preview == "" && md.Title == "" {
		md.Kind = KindBasic
	}
	return md
}

// parseMeta reads <title>, description and og: tags.
func parseMeta(data []byte) Metadata {
	var md Metadata
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return md
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if md.Title == "" && n.FirstChild != nil {
					md.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				key, val := "", ""
				for _, a := range n.Attr {
					switch a.Key {
					case "name", "property":
						key = strings.ToLower(a.Val)
					case "content":
						val = strings.TrimSpace(a.Val)
					}
				}
				switch key {
				case "og:title":
					if md.Title == "" {
						md.Title = val
					}
				case "description", "og:description":
					if md.Description == "" {
						md.Description = val
					}
				case "og:image":
					if md.Image == "" {
						md.Image = val
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return md
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
