// Package publisher posts finished units to social platforms, honoring the
// ordering between dependent posts and backing off on rate limits.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/metrics"
)

// DefaultSettleDelay separates a post from the post that references it.
const DefaultSettleDelay = 5 * time.Second

// PostRequest is one post to create.
type PostRequest struct {
	Text        string
	MediaIDs    []string
	InReplyToID string
	QuoteID     string
}

// Platform is a social network posting API.
type Platform interface {
	Name() content.Platform
	CreatePost(ctx context.Context, req PostRequest) (string, error)
	UploadMedia(ctx context.Context, data []byte, mediaType string) (string, error)
	PostURL(id string) string
}

// MaxMedia is the number of media a platform accepts on one post.
func MaxMedia(p content.Platform) int {
	if p == content.PlatformTwitter {
		return 4
	}
	return 20
}

// ItemResult is the outcome of publishing one item.
type ItemResult struct {
	ItemIndex int
	PostType  content.PostType
	PostID    string
	ParentID  string
	QuoteID   string
	URL       string
	State     State
	Err       error
}

// Result is the outcome of publishing one unit.
type Result struct {
	State       State
	Items       []ItemResult
	FailedIndex int
	History     []State
	Err         error
}

// OK reports whether every item was published.
func (r *Result) OK() bool {
	return r.State == StateDone && r.Err == nil
}

// Publisher drives the posting state machine for one platform.
type Publisher struct {
	platform Platform
	renderer SlideRenderer
	media    MediaSource
	settle   time.Duration
	metrics  *metrics.Metrics
}

// Config holds configuration for a Publisher.
type Config struct {
	Platform    Platform
	Renderer    SlideRenderer
	Media       MediaSource
	SettleDelay time.Duration
	Metrics     *metrics.Metrics
}

// New creates a Publisher. A negative SettleDelay disables the wait.
func New(cfg Config) *Publisher {
	settle := cfg.SettleDelay
	if settle == 0 {
		settle = DefaultSettleDelay
	}
	if settle < 0 {
		settle = 0
	}
	media := cfg.Media
	if media == nil {
		media = NewHTTPMediaSource(nil)
	}
	return &Publisher{
		platform: cfg.Platform,
		renderer: cfg.Renderer,
		media:    media,
		settle:   settle,
		metrics:  cfg.Metrics,
	}
}

// Publish posts every item of u in order. Items after the first wait for
// the settle delay and reference the previous post; a quote item references
// the first post instead. The first failure stops the unit.
func (p *Publisher) Publish(ctx context.Context, u content.Unit) *Result {
	t := newTracker()
	res := &Result{FailedIndex: -1}

	fail := func(index int, err error) *Result {
		t.fail()
		res.State = t.state
		res.History = t.history
		res.FailedIndex = index
		res.Err = err
		p.metrics.ObservePost(string(p.platform.Name()), false)
		return res
	}

	if u.Type.Platform() != p.platform.Name() {
		return fail(0, fmt.Errorf("%w: %s unit sent to %s", content.ErrConfiguration, u.Type, p.platform.Name()))
	}
	if len(u.Items) == 0 {
		return fail(0, fmt.Errorf("%w: unit has no items", content.ErrSchemaViolation))
	}

	if u.Type.IsCarousel() {
		item, err := p.publishCarousel(ctx, u, t)
		res.Items = append(res.Items, item)
		if err != nil {
			return fail(0, err)
		}
		t.to(StateDone)
		res.State, res.History = t.state, t.history
		return res
	}

	var firstID, prevID string
	for i, it := range u.Items {
		if i > 0 {
			if err := wait(ctx, p.settle); err != nil {
				return fail(i, fmt.Errorf("settle before item %d: %w", i, err))
			}
		}

		req := PostRequest{Text: it.PostText()}
		if len(it.Images) > 0 {
			if i == 0 {
				t.to(StateMediaUploading)
			}
			req.MediaIDs = p.uploadImages(ctx, it.Images)
		}
		switch {
		case i == 0:
		case it.PostType == content.PostQuote:
			req.QuoteID = firstID
		default:
			req.InReplyToID = prevID
		}

		id, err := p.platform.CreatePost(ctx, req)
		item := ItemResult{
			ItemIndex: i,
			PostType:  it.PostType,
			PostID:    id,
			ParentID:  req.InReplyToID,
			QuoteID:   req.QuoteID,
		}
		if err != nil {
			item.State = StateFailed
			item.Err = err
			res.Items = append(res.Items, item)
			return fail(i, fmt.Errorf("post item %d (%s): %w", i, it.PostType, err))
		}

		item.URL = p.platform.PostURL(id)
		if i == 0 {
			firstID = id
			t.to(StatePosted)
		} else {
			t.to(StateRepliedTo)
		}
		item.State = t.state
		res.Items = append(res.Items, item)
		prevID = id
		p.metrics.ObservePost(string(p.platform.Name()), true)

		slog.Info("posted item",
			"platform", p.platform.Name(),
			"type", u.Type,
			"post_number", u.PostNumber,
			"item", i,
			"post_id", id,
		)
	}

	t.to(StateDone)
	res.State, res.History = t.state, t.history
	return res
}

// uploadImages uploads what it can. A failed download or upload drops that
// image so the post degrades to fewer media or text only.
func (p *Publisher) uploadImages(ctx context.Context, urls []string) []string {
	limit := MaxMedia(p.platform.Name())
	var ids []string
	for _, url := range urls {
		if len(ids) == limit {
			break
		}
		data, mediaType, err := p.media.Fetch(ctx, url)
		if err != nil {
			slog.Warn("media download failed, posting without it", "url", url, "error", err)
			continue
		}
		id, err := p.platform.UploadMedia(ctx, data, mediaType)
		if err != nil {
			slog.Warn("media upload failed, posting without it", "url", url, "error", err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (p *Publisher) publishCarousel(ctx context.Context, u content.Unit, t *tracker) (ItemResult, error) {
	item := ItemResult{ItemIndex: 0, PostType: content.PostSlide}
	if p.renderer == nil {
		return item, fmt.Errorf("%w: no slide renderer configured", content.ErrConfiguration)
	}

	t.to(StateMediaUploading)
	slides, err := p.renderer.Render(ctx, u)
	if err != nil {
		return item, fmt.Errorf("render slides: %w", err)
	}
	if limit := MaxMedia(p.platform.Name()); len(slides) > limit {
		slides = slides[:limit]
	}

	var ids []string
	for i, slide := range slides {
		id, err := p.platform.UploadMedia(ctx, slide, "image/png")
		if err != nil {
			return item, fmt.Errorf("upload slide %d: %w", i, err)
		}
		ids = append(ids, id)
	}

	id, err := p.platform.CreatePost(ctx, PostRequest{Text: Caption(u), MediaIDs: ids})
	if err != nil {
		item.State = StateFailed
		item.Err = err
		return item, fmt.Errorf("post carousel: %w", err)
	}
	t.to(StatePosted)
	item.PostID = id
	item.URL = p.platform.PostURL(id)
	item.State = StatePosted
	p.metrics.ObservePost(string(p.platform.Name()), true)
	return item, nil
}

// Caption is the text posted with a carousel: the first slide's heading
// and subheading.
func Caption(u content.Unit) string {
	if len(u.Items) == 0 {
		return ""
	}
	first := u.Items[0]
	if first.Subheading == "" {
		return first.Heading
	}
	return first.Heading + "\n\n" + first.Subheading
}

// wait blocks for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsRateLimited reports whether err is a rate limit that outlived retries.
func IsRateLimited(err error) bool {
	return errors.Is(err, content.ErrRateLimited)
}
