package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/abdulachik/recast/internal/config"
	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/credstore"
	"github.com/abdulachik/recast/internal/crypto"
	"github.com/abdulachik/recast/internal/db"
	"github.com/abdulachik/recast/internal/llm"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DatabasePath:     filepath.Join(t.TempDir(), "nested", "recast.db"),
		CredentialSecret: "test-secret-with-enough-entropy",
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	store, err := OpenStore(ctx, testConfig(t))
	require.NoError(t, err)
	defer store.Close()

	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOpenCredentials(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	store, err := OpenStore(ctx, cfg)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.UpsertAccount(ctx, db.UpsertAccountParams{ID: "acme"}))

	creds, err := OpenCredentials(cfg, store)
	require.NoError(t, err)
	require.NoError(t, creds.Set(ctx, "acme", credstore.Record{
		Twitter: &oauth2.Token{AccessToken: "at", RefreshToken: "rt"},
	}))

	row, err := store.GetCredential(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, crypto.IsSealed(row.Blob))

	// A second store derived from the same secret opens the blob.
	again, err := OpenCredentials(cfg, store)
	require.NoError(t, err)
	rec, err := again.Get(ctx, "acme")
	require.NoError(t, err)
	assert.NoError(t, rec.Require(content.PlatformTwitter))
	assert.Equal(t, "rt", rec.Twitter.RefreshToken)
}

func TestOAuthConfigs(t *testing.T) {
	cfg := &config.Config{}
	assert.Nil(t, twitterOAuth(cfg))
	assert.Nil(t, linkedInOAuth(cfg))

	cfg.TwitterClientID = "tw"
	cfg.LinkedInClientID = "li"
	assert.Equal(t, credstore.TwitterEndpoint.TokenURL, twitterOAuth(cfg).Endpoint.TokenURL)
	assert.Contains(t, twitterOAuth(cfg).Scopes, "offline.access")
	assert.Equal(t, credstore.LinkedInEndpoint.TokenURL, linkedInOAuth(cfg).Endpoint.TokenURL)
}

func TestStageClient(t *testing.T) {
	blocking := llm.CompleteFunc(func(ctx context.Context, system, user string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	client := stageClient(&config.Config{StageTimeout: 20 * time.Millisecond}, blocking)
	start := time.Now()
	_, err := client.Complete(context.Background(), "system", "user")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
