package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/recast/internal/content"
)

type fakePlatform struct {
	mu        sync.Mutex
	name      content.Platform
	requests  []PostRequest
	uploads   int
	failAt    int
	uploadErr error
	onCreate  func(n int)
}

func newFakePlatform(name content.Platform) *fakePlatform {
	return &fakePlatform{name: name, failAt: -1}
}

func (f *fakePlatform) Name() content.Platform { return f.name }

func (f *fakePlatform) PostURL(id string) string { return "https://example.com/" + id }

func (f *fakePlatform) CreatePost(_ context.Context, req PostRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.requests)
	f.requests = append(f.requests, req)
	if f.onCreate != nil {
		f.onCreate(n)
	}
	if n == f.failAt {
		return "", &content.ServiceError{Service: "fake", StatusCode: 500}
	}
	return fmt.Sprintf("id-%d", n+1), nil
}

func (f *fakePlatform) UploadMedia(_ context.Context, _ []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads++
	return fmt.Sprintf("media-%d", f.uploads), nil
}

type fakeMedia struct {
	err error
}

func (m fakeMedia) Fetch(context.Context, string) ([]byte, string, error) {
	if m.err != nil {
		return nil, "", m.err
	}
	return []byte("png"), "image/png", nil
}

type fakeRenderer struct {
	slides int
}

func (r fakeRenderer) Render(context.Context, content.Unit) ([][]byte, error) {
	out := make([][]byte, r.slides)
	for i := range out {
		out[i] = []byte("slide")
	}
	return out, nil
}

func threadUnit() content.Unit {
	return content.Unit{
		PostNumber: 1,
		Type:       content.TypeThreadTweet,
		Items: []content.Item{
			{PostType: content.PostThread, Text: "1/ hook", Images: []string{"https://cdn.example.com/a.png"}},
			{PostType: content.PostThread, Text: "2/ body"},
			{PostType: content.PostThread, Text: "3/ more", Link: "https://example.com/source"},
			{PostType: content.PostArticleLink, Text: "Read it https://news.example.com/p/1"},
			{PostType: content.PostQuote, Text: "Share the thread"},
		},
	}
}

func TestPublish_ThreadOrdering(t *testing.T) {
	platform := newFakePlatform(content.PlatformTwitter)
	p := New(Config{Platform: platform, Media: fakeMedia{}, SettleDelay: -1})

	res := p.Publish(context.Background(), threadUnit())
	require.True(t, res.OK(), "publish failed: %v", res.Err)
	assert.Equal(t, -1, res.FailedIndex)

	require.Len(t, platform.requests, 5)
	first := platform.requests[0]
	assert.Empty(t, first.InReplyToID)
	assert.Equal(t, []string{"media-1"}, first.MediaIDs)

	assert.Equal(t, "id-1", platform.requests[1].InReplyToID)
	assert.Equal(t, "id-2", platform.requests[2].InReplyToID)
	assert.Equal(t, "3/ more\n\nhttps://example.com/source", platform.requests[2].Text)
	assert.Equal(t, "id-3", platform.requests[3].InReplyToID)

	quote := platform.requests[4]
	assert.Equal(t, "id-1", quote.QuoteID)
	assert.Empty(t, quote.InReplyToID)

	require.Len(t, res.Items, 5)
	assert.Equal(t, "https://example.com/id-5", res.Items[4].URL)
	assert.Equal(t, []State{
		StatePending, StateMediaUploading, StatePosted,
		StateRepliedTo, StateRepliedTo, StateRepliedTo, StateRepliedTo,
		StateDone,
	}, res.History)
}

func TestPublish_StopsAtFirstFailure(t *testing.T) {
	platform := newFakePlatform(content.PlatformTwitter)
	platform.failAt = 2
	p := New(Config{Platform: platform, Media: fakeMedia{}, SettleDelay: -1})

	res := p.Publish(context.Background(), threadUnit())
	assert.False(t, res.OK())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 2, res.FailedIndex)
	assert.ErrorIs(t, res.Err, content.ErrExternalService)
	assert.Len(t, platform.requests, 3)
	require.Len(t, res.Items, 3)
	assert.Equal(t, StateFailed, res.Items[2].State)
}

func TestPublish_MediaFailureDegradesToText(t *testing.T) {
	tests := []struct {
		name  string
		media MediaSource
		fail  error
	}{
		{"download fails", fakeMedia{err: errors.New("boom")}, nil},
		{"upload fails", fakeMedia{}, errors.New("upload rejected")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			platform := newFakePlatform(content.PlatformTwitter)
			platform.uploadErr = tt.fail
			p := New(Config{Platform: platform, Media: tt.media, SettleDelay: -1})

			res := p.Publish(context.Background(), threadUnit())
			require.True(t, res.OK())
			assert.Empty(t, platform.requests[0].MediaIDs)
			assert.Equal(t, "1/ hook", platform.requests[0].Text)
		})
	}
}

func TestPublish_CancelDuringSettle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	platform := newFakePlatform(content.PlatformTwitter)
	platform.onCreate = func(n int) {
		if n == 0 {
			cancel()
		}
	}
	p := New(Config{Platform: platform, Media: fakeMedia{}, SettleDelay: time.Hour})

	start := time.Now()
	res := p.Publish(ctx, threadUnit())
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, res.FailedIndex)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Len(t, platform.requests, 1)
}

func TestPublish_Carousel(t *testing.T) {
	unit := content.Unit{
		Type: content.TypeCarouselTweet,
		Items: []content.Item{
			{PostType: content.PostSlide, Heading: "Five lessons", Subheading: "from a year of writing"},
			{PostType: content.PostSlide, Heading: "One"},
		},
	}

	t.Run("without renderer", func(t *testing.T) {
		p := New(Config{Platform: newFakePlatform(content.PlatformTwitter), SettleDelay: -1})
		res := p.Publish(context.Background(), unit)
		assert.Equal(t, StateFailed, res.State)
		assert.ErrorIs(t, res.Err, content.ErrConfiguration)
	})

	t.Run("renders and caps media", func(t *testing.T) {
		platform := newFakePlatform(content.PlatformTwitter)
		p := New(Config{Platform: platform, Renderer: fakeRenderer{slides: 6}, SettleDelay: -1})
		res := p.Publish(context.Background(), unit)
		require.True(t, res.OK(), "publish failed: %v", res.Err)
		require.Len(t, platform.requests, 1)
		assert.Len(t, platform.requests[0].MediaIDs, 4)
		assert.Equal(t, "Five lessons\n\nfrom a year of writing", platform.requests[0].Text)
	})
}

func TestPublish_PlatformMismatch(t *testing.T) {
	p := New(Config{Platform: newFakePlatform(content.PlatformLinkedIn), SettleDelay: -1})
	res := p.Publish(context.Background(), threadUnit())
	assert.ErrorIs(t, res.Err, content.ErrConfiguration)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatePending, StatePosted))
	assert.True(t, CanTransition(StatePosted, StateRepliedTo))
	assert.True(t, CanTransition(StateRepliedTo, StateRepliedTo))
	assert.True(t, CanTransition(StateMediaUploading, StateFailed))
	assert.False(t, CanTransition(StatePending, StateRepliedTo))
	assert.False(t, CanTransition(StateDone, StateFailed))
	assert.False(t, CanTransition(StateDone, StatePosted))
}
