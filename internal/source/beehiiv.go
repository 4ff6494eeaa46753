package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/abdulachik/recast/internal/content"
)

const beehiivAPIURL = "https://api.beehiiv.com/v2"

var beehiivPostSlug = regexp.MustCompile(`/p(?:osts)?/([^/?#]+)`)

// BeehiivProvider reads editions through the Beehiiv posts API, which
// returns the full web content for subscriber-only posts too.
type BeehiivProvider struct {
	httpClient    *http.Client
	apiURL        string
	apiKey        string
	publicationID string
}

// BeehiivConfig holds configuration for the Beehiiv provider.
type BeehiivConfig struct {
	HTTPClient    *http.Client
	APIURL        string
	APIKey        string
	PublicationID string
}

// NewBeehiivProvider creates a Beehiiv provider.
func NewBeehiivProvider(cfg BeehiivConfig) *BeehiivProvider {
	p := &BeehiivProvider{
		httpClient:    cfg.HTTPClient,
		apiURL:        strings.TrimRight(cfg.APIURL, "/"),
		apiKey:        cfg.APIKey,
		publicationID: cfg.PublicationID,
	}
	if p.httpClient == nil {
		p.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if p.apiURL == "" {
		p.apiURL = beehiivAPIURL
	}
	return p
}

type beehiivPost struct {
	Data struct {
		ID           string `json:"id"`
		Title        string `json:"title"`
		WebURL       string `json:"web_url"`
		ThumbnailURL string `json:"thumbnail_url"`
		Content      struct {
			Free struct {
				Web string `json:"web"`
			} `json:"free"`
			Premium struct {
				Web string `json:"web"`
			} `json:"premium"`
		} `json:"content"`
	} `json:"data"`
}

// PostID returns the post identifier in an edition URL. A bare identifier
// is returned as is.
func PostID(editionURL string) (string, error) {
	if !strings.Contains(editionURL, "/") {
		if editionURL == "" {
			return "", fmt.Errorf("%w: empty edition url", content.ErrConfiguration)
		}
		return editionURL, nil
	}
	m := beehiivPostSlug.FindStringSubmatch(editionURL)
	if m == nil {
		return "", fmt.Errorf("%w: no post id in %s", content.ErrConfiguration, editionURL)
	}
	return m[1], nil
}

// Fetch loads the post behind editionURL and extracts its web content.
func (p *BeehiivProvider) Fetch(ctx context.Context, editionURL string) (*Article, error) {
	if p.apiKey == "" || p.publicationID == "" {
		return nil, fmt.Errorf("%w: beehiiv api key and publication id are required", content.ErrConfiguration)
	}
	postID, err := PostID(editionURL)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/publications/%s/posts/%s?expand[]=free_web_content&expand[]=premium_web_content",
		p.apiURL, p.publicationID, postID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch post: %w: %v", content.ErrExternalService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &content.ServiceError{Service: "beehiiv", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var post beehiivPost
	if err := json.Unmarshal(body, &post); err != nil {
		return nil, fmt.Errorf("%w: parse post: %v", content.ErrStructuralParse, err)
	}

	web := post.Data.Content.Premium.Web
	if web == "" {
		web = post.Data.Content.Free.Web
	}
	pageURL := post.Data.WebURL
	if pageURL == "" {
		pageURL = editionURL
	}

	a, err := Parse([]byte(web), pageURL)
	if err != nil {
		return nil, err
	}
	if post.Data.Title != "" {
		a.Title = post.Data.Title
	}
	if post.Data.WebURL != "" {
		a.CanonicalURL = post.Data.WebURL
	}
	if post.Data.ThumbnailURL != "" {
		a.ThumbnailURL = post.Data.ThumbnailURL
	}
	return a, nil
}
