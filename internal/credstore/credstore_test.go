package credstore

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/crypto"
	"github.com/abdulachik/recast/internal/db"
	"github.com/abdulachik/recast/internal/db/dbtest"
)

func newTestStore(t *testing.T, accounts ...string) (*Store, *db.Store) {
	t.Helper()
	backend := dbtest.NewStore(t)
	for _, a := range accounts {
		dbtest.SeedAccount(t, backend, a)
	}
	enc, err := crypto.DeriveEncryptor([]byte("credstore-test-secret"), "credentials")
	require.NoError(t, err)
	return New(backend, enc), backend
}

func TestStore_SetGet(t *testing.T) {
	store, backend := newTestStore(t, "acct")
	ctx := context.Background()

	rec := Record{
		Twitter:        &oauth2.Token{AccessToken: "tw-access", RefreshToken: "tw-refresh"},
		LinkedInAuthor: "urn:li:person:1",
	}
	require.NoError(t, store.Set(ctx, "acct", rec))

	got, err := store.Get(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, "tw-access", got.Twitter.AccessToken)
	assert.Equal(t, "urn:li:person:1", got.LinkedInAuthor)
	assert.Nil(t, got.LinkedIn)

	row, err := backend.GetCredential(ctx, "acct")
	require.NoError(t, err)
	assert.True(t, crypto.IsSealed(row.Blob))
	assert.NotContains(t, row.Blob, "tw-access")
}

func TestStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ConcurrentUpdatesKeepEveryWrite(t *testing.T) {
	store, _ := newTestStore(t, "acct")
	ctx := context.Background()

	const writers = 25
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Update(ctx, "acct", func(rec *Record) error {
				rec.LinkedInAuthor += "x"
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("x", writers), got.LinkedInAuthor)
	assert.Equal(t, 0, store.locks.size())
}

func TestStore_UpdateErrorWritesNothing(t *testing.T) {
	store, _ := newTestStore(t, "acct")
	ctx := context.Background()

	err := store.Update(ctx, "acct", func(rec *Record) error {
		rec.LinkedInAuthor = "changed"
		return fmt.Errorf("validation failed")
	})
	require.Error(t, err)

	_, err = store.Get(ctx, "acct")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecord_Require(t *testing.T) {
	rec := Record{Twitter: &oauth2.Token{AccessToken: "a"}}
	assert.NoError(t, rec.Require(content.PlatformTwitter))
	assert.ErrorIs(t, rec.Require(content.PlatformLinkedIn), content.ErrConfiguration)

	rec.LinkedIn = &oauth2.Token{AccessToken: "b"}
	err := rec.Require(content.PlatformTwitter, content.PlatformLinkedIn)
	assert.ErrorIs(t, err, content.ErrConfiguration, "author urn is still missing")
}

func TestTokenSource_PersistsRefresh(t *testing.T) {
	var refreshes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))
		refreshes.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"fresh","token_type":"bearer","refresh_token":"new-refresh","expires_in":3600}`))
	}))
	defer server.Close()

	store, _ := newTestStore(t, "acct")
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "acct", Record{Twitter: &oauth2.Token{
		AccessToken:  "stale",
		RefreshToken: "old-refresh",
		Expiry:       time.Now().Add(-time.Hour),
	}}))

	cfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: server.URL, AuthStyle: oauth2.AuthStyleInParams},
	}
	ts, err := store.TokenSource(ctx, "acct", content.PlatformTwitter, cfg)
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)

	// Cached until expiry.
	_, err = ts.Token()
	require.NoError(t, err)
	assert.Equal(t, int32(1), refreshes.Load())

	got, err := store.Get(ctx, "acct")
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Twitter.AccessToken)
	assert.Equal(t, "new-refresh", got.Twitter.RefreshToken)
}

func TestTokenSource_MissingPlatform(t *testing.T) {
	store, _ := newTestStore(t, "acct")
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, "acct", Record{Twitter: &oauth2.Token{AccessToken: "a"}}))

	_, err := store.TokenSource(ctx, "acct", content.PlatformLinkedIn, &oauth2.Config{})
	assert.ErrorIs(t, err, content.ErrConfiguration)
}
