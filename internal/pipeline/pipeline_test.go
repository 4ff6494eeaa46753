package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/oauth2"

	"github.com/abdulachik/recast/internal/analyzer"
	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/credstore"
	"github.com/abdulachik/recast/internal/db"
	"github.com/abdulachik/recast/internal/db/dbtest"
	"github.com/abdulachik/recast/internal/generator"
	"github.com/abdulachik/recast/internal/llm"
	"github.com/abdulachik/recast/internal/notify"
	"github.com/abdulachik/recast/internal/publisher"
	"github.com/abdulachik/recast/internal/source"
	"github.com/abdulachik/recast/internal/strategy"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sectionsAnswer = `~!{"sections":[{"section_title":"Main Story","section_content":"How we grew the list by writing less."}]}!~`

const preCTAAnswer = `~!{"content_type":"precta_tweet","content_container":[{"post_type":"main_tweet","post_content":"Tomorrow: why writing less grew the list."}]}!~`

// scriptedLLM answers the analyzer with one section and every other call
// with a precta unit.
type scriptedLLM struct {
	calls atomic.Int32
}

func (s *scriptedLLM) Complete(_ context.Context, system, _ string) (string, error) {
	s.calls.Add(1)
	if system == analyzer.SystemPrompt {
		return sectionsAnswer, nil
	}
	return preCTAAnswer, nil
}

type fakeSource struct{}

func (fakeSource) Fetch(_ context.Context, editionURL string) (*source.Article, error) {
	return &source.Article{
		Title:        "Edition",
		ContentText:  "How we grew the list by writing less.",
		CanonicalURL: editionURL,
	}, nil
}

type fakeCredentials struct {
	rec credstore.Record
	err error
}

func (f fakeCredentials) Get(context.Context, string) (credstore.Record, error) {
	return f.rec, f.err
}

type fakePlatform struct {
	mu     sync.Mutex
	posts  []publisher.PostRequest
	failAt int
}

func (f *fakePlatform) Name() content.Platform { return content.PlatformTwitter }

func (f *fakePlatform) PostURL(id string) string { return "https://x.com/i/web/status/" + id }

func (f *fakePlatform) CreatePost(_ context.Context, req publisher.PostRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.posts)
	f.posts = append(f.posts, req)
	if n == f.failAt {
		return "", &content.ServiceError{Service: "twitter", StatusCode: 503}
	}
	return fmt.Sprintf("%d", 100+n), nil
}

func (f *fakePlatform) UploadMedia(context.Context, []byte, string) (string, error) {
	return "", errors.New("no media in this test")
}

type fakeFactory struct {
	platform *fakePlatform
}

func (f fakeFactory) Platform(context.Context, string, credstore.Record, content.Platform) (publisher.Platform, error) {
	return f.platform, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

type memArchive struct {
	mu    sync.Mutex
	texts []string
}

func (m *memArchive) Add(_ context.Context, _ string, _ content.Platform, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

type fixture struct {
	store    *db.Store
	llm      *scriptedLLM
	platform *fakePlatform
	notifier *recordingNotifier
	archive  *memArchive
}

func newFixture(t *testing.T, creds Credentials) (*Runner, *fixture) {
	t.Helper()
	store := dbtest.NewStore(t)
	require.NoError(t, store.UpsertAccount(context.Background(), db.UpsertAccountParams{
		ID:           "acct",
		DisplayName:  "Acct",
		SubscribeURL: "https://news.example.com/subscribe",
	}))

	f := &fixture{
		store:    store,
		llm:      &scriptedLLM{},
		platform: &fakePlatform{failAt: -1},
		notifier: &recordingNotifier{},
		archive:  &memArchive{},
	}
	var client llm.Client = f.llm
	r := New(Config{
		Store:       store,
		Source:      fakeSource{},
		Analyzer:    analyzer.New(analyzer.Config{Client: client}),
		Strategist:  strategy.New(strategy.Config{Client: client}),
		Generator:   generator.New(generator.Config{Client: client}),
		Credentials: creds,
		Platforms:   fakeFactory{platform: f.platform},
		SettleDelay: -1,
		Archive:     f.archive,
		Notifier:    f.notifier,
	})
	return r, f
}

func twitterCreds() fakeCredentials {
	return fakeCredentials{rec: credstore.Record{Twitter: &oauth2.Token{AccessToken: "tok"}}}
}

func TestRun_GenerateOnly(t *testing.T) {
	r, f := newFixture(t, nil)
	ctx := context.Background()

	res := r.Run(ctx, Request{
		AccountID:    "acct",
		EditionURL:   "https://news.example.com/p/edition",
		ContentTypes: []content.Type{content.TypePreCTATweet},
	})
	ok, msg := res.OK()
	require.True(t, ok, msg)
	assert.Equal(t, db.RunGenerated, res.Status)
	require.Len(t, res.Units, 1)
	assert.Len(t, res.Units[0].Unit.Items, 2)
	assert.Empty(t, f.platform.posts)

	run, err := f.store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, db.RunGenerated, run.Status)

	units, err := f.store.ListUnitsByRun(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, db.UnitGenerated, units[0].Status)
	assert.NotEmpty(t, units[0].Envelope)
}

func TestRun_Publish(t *testing.T) {
	r, f := newFixture(t, twitterCreds())
	ctx := context.Background()

	res := r.Run(ctx, Request{
		AccountID:    "acct",
		EditionURL:   "https://news.example.com/p/edition",
		ContentTypes: []content.Type{content.TypePreCTATweet},
		Publish:      true,
	})
	ok, msg := res.OK()
	require.True(t, ok, msg)
	assert.Equal(t, db.RunPublished, res.Status)

	require.Len(t, f.platform.posts, 2)
	assert.Empty(t, f.platform.posts[0].InReplyToID)
	assert.Equal(t, "100", f.platform.posts[1].InReplyToID)
	assert.Equal(t, []string{"https://x.com/i/web/status/100", "https://x.com/i/web/status/101"}, res.PostURLs())

	posts, err := f.store.ListPublishedByAccount(ctx, "acct", string(content.PlatformTwitter), 10)
	require.NoError(t, err)
	assert.Len(t, posts, 2)
	assert.Len(t, f.archive.texts, 2)

	units, err := f.store.ListUnitsByRun(ctx, res.RunID)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, db.UnitPublished, units[0].Status)

	require.Len(t, f.notifier.sent, 1)
	assert.True(t, f.notifier.sent[0].Success)
	assert.Len(t, f.notifier.sent[0].PostURLs, 2)
}

func TestRun_PublishFailureNamesItem(t *testing.T) {
	r, f := newFixture(t, twitterCreds())
	f.platform.failAt = 1
	ctx := context.Background()

	res := r.Run(ctx, Request{
		AccountID:    "acct",
		EditionURL:   "https://news.example.com/p/edition",
		ContentTypes: []content.Type{content.TypePreCTATweet},
		Publish:      true,
	})
	ok, msg := res.OK()
	assert.False(t, ok)
	assert.Contains(t, msg, "post 1 (precta_tweet) item 1")
	assert.ErrorIs(t, res.Units[0].Err, content.ErrExternalService)

	run, err := f.store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, db.RunFailed, run.Status)
	assert.Equal(t, msg, run.Message)

	// the first post went out and is still recorded
	posts, err := f.store.ListPublishedByAccount(ctx, "acct", string(content.PlatformTwitter), 10)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestRun_MissingCredentialsFailsBeforeGeneration(t *testing.T) {
	r, f := newFixture(t, fakeCredentials{err: credstore.ErrNotFound})
	ctx := context.Background()

	res := r.Run(ctx, Request{
		AccountID:    "acct",
		EditionURL:   "https://news.example.com/p/edition",
		ContentTypes: []content.Type{content.TypePreCTATweet, content.TypeLongFormPost},
		Publish:      true,
	})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, content.ErrConfiguration)
	assert.Zero(t, f.llm.calls.Load())

	run, err := f.store.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, db.RunFailed, run.Status)
}

func TestRun_MissingPlatformToken(t *testing.T) {
	r, f := newFixture(t, twitterCreds())

	res := r.Run(context.Background(), Request{
		AccountID:    "acct",
		EditionURL:   "https://news.example.com/p/edition",
		ContentTypes: []content.Type{content.TypeLongFormPost},
		Publish:      true,
	})
	assert.ErrorIs(t, res.Err, content.ErrConfiguration)
	assert.Zero(t, f.llm.calls.Load())
}

func TestRun_InvalidRequest(t *testing.T) {
	r, f := newFixture(t, nil)

	tests := []struct {
		name string
		req  Request
	}{
		{"no account", Request{EditionURL: "https://e", ContentTypes: []content.Type{content.TypePreCTATweet}}},
		{"no url", Request{AccountID: "acct", ContentTypes: []content.Type{content.TypePreCTATweet}}},
		{"no types", Request{AccountID: "acct", EditionURL: "https://e"}},
		{"unknown type", Request{AccountID: "acct", EditionURL: "https://e", ContentTypes: []content.Type{"tiktok"}}},
		{"unknown account", Request{AccountID: "nobody", EditionURL: "https://e", ContentTypes: []content.Type{content.TypePreCTATweet}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Run(context.Background(), tt.req)
			assert.False(t, res.Success)
			assert.ErrorIs(t, res.Err, content.ErrConfiguration)
		})
	}
	assert.Zero(t, f.llm.calls.Load())
}

func TestRun_CarouselWithoutRendererIsConfigurationError(t *testing.T) {
	r, f := newFixture(t, twitterCreds())

	res := r.Run(context.Background(), Request{
		AccountID:    "acct",
		EditionURL:   "https://news.example.com/p/edition",
		ContentTypes: []content.Type{content.TypeCarouselTweet},
		Publish:      true,
	})
	assert.ErrorIs(t, res.Err, content.ErrConfiguration)
	assert.Zero(t, f.llm.calls.Load())
}

func TestRequestFromRun(t *testing.T) {
	req, err := RequestFromRun(db.Run{
		ID:           "run-1",
		AccountID:    "acct",
		EditionURL:   "https://e",
		ContentTypes: "precta_tweet,long_form_post",
		Publish:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, []content.Type{content.TypePreCTATweet, content.TypeLongFormPost}, req.ContentTypes)
	assert.Equal(t, "run-1", req.RunID)
	assert.True(t, req.Publish)

	_, err = RequestFromRun(db.Run{ID: "bad", ContentTypes: "nope"})
	assert.Error(t, err)
}

func TestStatusTracker_ForwardOnly(t *testing.T) {
	store := &statusRecorder{}
	s := newStatusTracker(store, "run")
	ctx := context.Background()

	s.advance(ctx, db.RunAnalyzing)
	s.advance(ctx, db.RunPolishing)
	s.advance(ctx, db.RunWritingHooks)
	s.advance(ctx, db.RunPolishing)
	s.finish(ctx, db.RunFailed, "boom")

	assert.Equal(t, []string{db.RunAnalyzing, db.RunPolishing, db.RunFailed}, store.statuses)
}

type statusRecorder struct {
	RunStore
	statuses []string
}

func (s *statusRecorder) UpdateRunStatus(_ context.Context, _, status, _ string) error {
	s.statuses = append(s.statuses, status)
	return nil
}
