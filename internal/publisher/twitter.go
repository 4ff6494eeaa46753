package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/metrics"
)

const (
	twitterAPIURL    = "https://api.twitter.com"
	twitterUploadURL = "https://upload.twitter.com/1.1/media/upload.json"

	// MaxChunkSize is the largest APPEND segment the upload endpoint takes.
	MaxChunkSize = 4 * 1024 * 1024
)

// TwitterClient posts tweets through the v2 API and uploads media through
// the chunked v1.1 upload endpoint.
type TwitterClient struct {
	httpClient *http.Client
	apiURL     string
	uploadURL  string
	chunkSize  int
	retry      RetryPolicy
	metrics    *metrics.Metrics
}

// TwitterConfig holds configuration for the Twitter client. HTTPClient must
// attach the account's bearer token, e.g. one built by oauth2.NewClient.
type TwitterConfig struct {
	HTTPClient *http.Client
	APIURL     string
	UploadURL  string
	ChunkSize  int
	Retry      RetryPolicy
	Metrics    *metrics.Metrics
}

// NewTwitterClient creates a new Twitter client.
func NewTwitterClient(cfg TwitterConfig) *TwitterClient {
	c := &TwitterClient{
		httpClient: cfg.HTTPClient,
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		uploadURL:  cfg.UploadURL,
		chunkSize:  cfg.ChunkSize,
		retry:      cfg.Retry,
		metrics:    cfg.Metrics,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.apiURL == "" {
		c.apiURL = twitterAPIURL
	}
	if c.uploadURL == "" {
		c.uploadURL = twitterUploadURL
	}
	if c.chunkSize <= 0 || c.chunkSize > MaxChunkSize {
		c.chunkSize = MaxChunkSize
	}
	if c.retry == (RetryPolicy{}) {
		c.retry = DefaultRetryPolicy()
	}
	return c
}

// Name returns the platform name.
func (c *TwitterClient) Name() content.Platform {
	return content.PlatformTwitter
}

// PostURL returns the public URL of a tweet.
func (c *TwitterClient) PostURL(id string) string {
	return "https://x.com/i/web/status/" + id
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createTweetRequest struct {
	Text         string      `json:"text"`
	Media        *tweetMedia `json:"media,omitempty"`
	Reply        *tweetReply `json:"reply,omitempty"`
	QuoteTweetID string      `json:"quote_tweet_id,omitempty"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// CreatePost creates one tweet.
func (c *TwitterClient) CreatePost(ctx context.Context, req PostRequest) (string, error) {
	body := createTweetRequest{Text: req.Text, QuoteTweetID: req.QuoteID}
	if len(req.MediaIDs) > 0 {
		body.Media = &tweetMedia{MediaIDs: req.MediaIDs}
	}
	if req.InReplyToID != "" {
		body.Reply = &tweetReply{InReplyToTweetID: req.InReplyToID}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	resp, err := c.do(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/2/tweets", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		return r, nil
	})
	if err != nil {
		return "", err
	}

	var out createTweetResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("%w: twitter returned no tweet id", content.ErrExternalService)
	}
	return out.Data.ID, nil
}

type mediaInitResponse struct {
	MediaIDString string `json:"media_id_string"`
}

// UploadMedia uploads data with the INIT, APPEND, FINALIZE sequence and
// returns the media id. The first failed chunk aborts the upload.
func (c *TwitterClient) UploadMedia(ctx context.Context, data []byte, mediaType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty media", content.ErrConfiguration)
	}

	form := url.Values{
		"command":     {"INIT"},
		"total_bytes": {strconv.Itoa(len(data))},
		"media_type":  {mediaType},
	}
	resp, err := c.do(ctx, c.formRequest(form))
	if err != nil {
		return "", fmt.Errorf("media init: %w", err)
	}
	var initResp mediaInitResponse
	if err := json.Unmarshal(resp.body, &initResp); err != nil {
		return "", fmt.Errorf("parse media init: %w", err)
	}
	if initResp.MediaIDString == "" {
		return "", fmt.Errorf("%w: media init returned no id", content.ErrExternalService)
	}
	mediaID := initResp.MediaIDString

	for index, offset := 0, 0; offset < len(data); index, offset = index+1, offset+c.chunkSize {
		end := min(offset+c.chunkSize, len(data))
		if _, err := c.do(ctx, c.appendRequest(mediaID, index, data[offset:end])); err != nil {
			return "", fmt.Errorf("media append %d: %w", index, err)
		}
	}

	form = url.Values{"command": {"FINALIZE"}, "media_id": {mediaID}}
	if _, err := c.do(ctx, c.formRequest(form)); err != nil {
		return "", fmt.Errorf("media finalize: %w", err)
	}

	slog.Debug("uploaded media", "media_id", mediaID, "bytes", len(data), "type", mediaType)
	return mediaID, nil
}

func (c *TwitterClient) formRequest(form url.Values) func(context.Context) (*http.Request, error) {
	encoded := form.Encode()
	return func(ctx context.Context) (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, strings.NewReader(encoded))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return r, nil
	}
}

func (c *TwitterClient) appendRequest(mediaID string, index int, chunk []byte) func(context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		fields := [][2]string{
			{"command", "APPEND"},
			{"media_id", mediaID},
			{"segment_index", strconv.Itoa(index)},
		}
		for _, f := range fields {
			if err := w.WriteField(f[0], f[1]); err != nil {
				return nil, err
			}
		}
		part, err := w.CreateFormFile("media", "chunk")
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, bytes.NewReader(chunk)); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}

		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &buf)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", w.FormDataContentType())
		return r, nil
	}
}

// do builds a fresh request for every attempt so retried bodies are
// complete.
func (c *TwitterClient) do(ctx context.Context, build func(context.Context) (*http.Request, error)) (*response, error) {
	return c.retry.execute(ctx, "twitter", func(ctx context.Context) (*response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		return send(c.httpClient, req)
	}, func() {
		c.metrics.ObserveRetry(string(content.PlatformTwitter))
	})
}
