package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/metrics"
)

const (
	linkedInAPIURL  = "https://api.linkedin.com"
	linkedInVersion = "202405"
)

// LinkedInClient publishes through the LinkedIn REST posts API. Replies
// are comments on the first post.
type LinkedInClient struct {
	httpClient *http.Client
	apiURL     string
	author     string
	version    string
	retry      RetryPolicy
	metrics    *metrics.Metrics
}

// LinkedInConfig holds configuration for the LinkedIn client. Author is the
// member or organization URN posts are created as.
type LinkedInConfig struct {
	HTTPClient *http.Client
	APIURL     string
	Author     string
	Version    string
	Retry      RetryPolicy
	Metrics    *metrics.Metrics
}

// NewLinkedInClient creates a new LinkedIn client.
func NewLinkedInClient(cfg LinkedInConfig) *LinkedInClient {
	c := &LinkedInClient{
		httpClient: cfg.HTTPClient,
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		author:     cfg.Author,
		version:    cfg.Version,
		retry:      cfg.Retry,
		metrics:    cfg.Metrics,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.apiURL == "" {
		c.apiURL = linkedInAPIURL
	}
	if c.version == "" {
		c.version = linkedInVersion
	}
	if c.retry == (RetryPolicy{}) {
		c.retry = DefaultRetryPolicy()
	}
	return c
}

// Name returns the platform name.
func (c *LinkedInClient) Name() content.Platform {
	return content.PlatformLinkedIn
}

// PostURL returns the public URL of a post.
func (c *LinkedInClient) PostURL(id string) string {
	return "https://www.linkedin.com/feed/update/" + id
}

type linkedInDistribution struct {
	FeedDistribution               string   `json:"feedDistribution"`
	TargetEntities                 []string `json:"targetEntities"`
	ThirdPartyDistributionChannels []string `json:"thirdPartyDistributionChannels"`
}

type linkedInMediaRef struct {
	ID string `json:"id"`
}

type linkedInMultiImage struct {
	Images []linkedInMediaRef `json:"images"`
}

type linkedInContent struct {
	Media      *linkedInMediaRef   `json:"media,omitempty"`
	MultiImage *linkedInMultiImage `json:"multiImage,omitempty"`
}

type linkedInReshare struct {
	Parent string `json:"parent"`
}

type linkedInPost struct {
	Author                    string               `json:"author"`
	Commentary                string               `json:"commentary"`
	Visibility                string               `json:"visibility"`
	Distribution              linkedInDistribution `json:"distribution"`
	LifecycleState            string               `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool                 `json:"isReshareDisabledByAuthor"`
	Content                   *linkedInContent     `json:"content,omitempty"`
	ReshareContext            *linkedInReshare     `json:"reshareContext,omitempty"`
}

type linkedInComment struct {
	Actor   string `json:"actor"`
	Object  string `json:"object"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
}

// CreatePost creates a post. A request with InReplyToID becomes a comment
// on that post; a request with QuoteID becomes a reshare of it.
func (c *LinkedInClient) CreatePost(ctx context.Context, req PostRequest) (string, error) {
	if c.author == "" {
		return "", fmt.Errorf("%w: linkedin author urn is not set", content.ErrConfiguration)
	}
	if req.InReplyToID != "" {
		return c.comment(ctx, req.InReplyToID, req.Text)
	}

	post := linkedInPost{
		Author:     c.author,
		Commentary: req.Text,
		Visibility: "PUBLIC",
		Distribution: linkedInDistribution{
			FeedDistribution:               "MAIN_FEED",
			TargetEntities:                 []string{},
			ThirdPartyDistributionChannels: []string{},
		},
		LifecycleState: "PUBLISHED",
	}
	switch len(req.MediaIDs) {
	case 0:
	case 1:
		post.Content = &linkedInContent{Media: &linkedInMediaRef{ID: req.MediaIDs[0]}}
	default:
		post.Content = &linkedInContent{MultiImage: &linkedInMultiImage{}}
		for _, id := range req.MediaIDs {
			post.Content.MultiImage.Images = append(post.Content.MultiImage.Images, linkedInMediaRef{ID: id})
		}
	}
	if req.QuoteID != "" {
		post.ReshareContext = &linkedInReshare{Parent: req.QuoteID}
	}

	resp, err := c.postJSON(ctx, c.apiURL+"/rest/posts", post)
	if err != nil {
		return "", err
	}
	return restliID(resp)
}

func (c *LinkedInClient) comment(ctx context.Context, parent, text string) (string, error) {
	body := linkedInComment{Actor: c.author, Object: parent}
	body.Message.Text = text

	endpoint := c.apiURL + "/rest/socialActions/" + url.PathEscape(parent) + "/comments"
	resp, err := c.postJSON(ctx, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("comment: %w", err)
	}
	return restliID(resp)
}

type initializeUploadResponse struct {
	Value struct {
		UploadURL string `json:"uploadUrl"`
		Image     string `json:"image"`
	} `json:"value"`
}

// UploadMedia registers an image upload and PUTs the bytes to the returned
// upload URL.
func (c *LinkedInClient) UploadMedia(ctx context.Context, data []byte, mediaType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty media", content.ErrConfiguration)
	}
	body := map[string]any{"initializeUploadRequest": map[string]string{"owner": c.author}}
	resp, err := c.postJSON(ctx, c.apiURL+"/rest/images?action=initializeUpload", body)
	if err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}

	var upload initializeUploadResponse
	if err := json.Unmarshal(resp.body, &upload); err != nil {
		return "", fmt.Errorf("parse initialize upload: %w", err)
	}
	if upload.Value.UploadURL == "" || upload.Value.Image == "" {
		return "", fmt.Errorf("%w: linkedin returned no upload url", content.ErrExternalService)
	}

	_, err = c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPut, upload.Value.UploadURL, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", mediaType)
		return r, nil
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return upload.Value.Image, nil
}

func (c *LinkedInClient) postJSON(ctx context.Context, endpoint string, v any) (*response, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("LinkedIn-Version", c.version)
		r.Header.Set("X-Restli-Protocol-Version", "2.0.0")
		return r, nil
	})
}

func (c *LinkedInClient) do(ctx context.Context, build func(context.Context) (*http.Request, error)) (*response, error) {
	return c.retry.execute(ctx, "linkedin", func(ctx context.Context) (*response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		return send(c.httpClient, req)
	}, func() {
		c.metrics.ObserveRetry(string(content.PlatformLinkedIn))
	})
}

// restliID reads the created entity URN from the x-restli-id header, or
// the id field of the body for endpoints that return one.
func restliID(resp *response) (string, error) {
	if id := resp.header.Get("X-Restli-Id"); id != "" {
		return id, nil
	}
	var body struct {
		ID  string `json:"id"`
		URN string `json:"$URN"`
	}
	if len(resp.body) > 0 && json.Unmarshal(resp.body, &body) == nil {
		if body.URN != "" {
			return body.URN, nil
		}
		if body.ID != "" {
			return body.ID, nil
		}
	}
	return "", fmt.Errorf("%w: linkedin returned no entity id", content.ErrExternalService)
}
