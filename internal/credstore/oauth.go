package credstore

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/abdulachik/recast/internal/content"
)

// Token endpoints of the supported platforms.
var (
	TwitterEndpoint = oauth2.Endpoint{
		AuthURL:   "https://twitter.com/i/oauth2/authorize",
		TokenURL:  "https://api.twitter.com/2/oauth2/token",
		AuthStyle: oauth2.AuthStyleInHeader,
	}
	LinkedInEndpoint = oauth2.Endpoint{
		AuthURL:   "https://www.linkedin.com/oauth/v2/authorization",
		TokenURL:  "https://www.linkedin.com/oauth/v2/accessToken",
		AuthStyle: oauth2.AuthStyleInParams,
	}
)

// TokenSource returns a source that refreshes the stored token of platform
// with cfg and writes every refreshed token back through Update.
func (s *Store) TokenSource(ctx context.Context, accountID string, platform content.Platform, cfg *oauth2.Config) (oauth2.TokenSource, error) {
	rec, err := s.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.TokenSourceFor(ctx, accountID, platform, rec, cfg)
}

// TokenSourceFor is TokenSource for a record the caller already loaded.
func (s *Store) TokenSourceFor(ctx context.Context, accountID string, platform content.Platform, rec Record, cfg *oauth2.Config) (oauth2.TokenSource, error) {
	tok := rec.Token(platform)
	if tok == nil {
		return nil, fmt.Errorf("%w: no %s credentials for %s", content.ErrConfiguration, platform, accountID)
	}
	return &persistingSource{
		ctx:       ctx,
		store:     s,
		accountID: accountID,
		platform:  platform,
		base:      oauth2.ReuseTokenSource(tok, cfg.TokenSource(ctx, tok)),
		last:      tok.AccessToken,
	}, nil
}

// HTTPClient returns a client that authorizes requests with the token of
// platform in rec.
func (s *Store) HTTPClient(ctx context.Context, accountID string, platform content.Platform, rec Record, cfg *oauth2.Config) (*http.Client, error) {
	ts, err := s.TokenSourceFor(ctx, accountID, platform, rec, cfg)
	if err != nil {
		return nil, err
	}
	client := oauth2.NewClient(ctx, ts)
	client.Timeout = 60 * time.Second
	return client, nil
}

type persistingSource struct {
	ctx       context.Context
	store     *Store
	accountID string
	platform  content.Platform
	base      oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, fmt.Errorf("refresh %s token: %w", p.platform, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken == p.last {
		return tok, nil
	}

	err = p.store.Update(p.ctx, p.accountID, func(rec *Record) error {
		rec.SetToken(p.platform, tok)
		return nil
	})
	if err != nil {
		// The fresh token still works for this run.
		slog.Warn("failed to persist refreshed token",
			"account", p.accountID,
			"platform", p.platform,
			"error", err,
		)
		return tok, nil
	}
	p.last = tok.AccessToken
	slog.Debug("persisted refreshed token", "account", p.accountID, "platform", p.platform)
	return tok, nil
}
