// Package app wires configuration into a ready pipeline runner.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/abdulachik/recast/internal/analyzer"
	"github.com/abdulachik/recast/internal/config"
	"github.com/abdulachik/recast/internal/credstore"
	"github.com/abdulachik/recast/internal/crypto"
	"github.com/abdulachik/recast/internal/db"
	"github.com/abdulachik/recast/internal/generator"
	"github.com/abdulachik/recast/internal/llm"
	"github.com/abdulachik/recast/internal/metrics"
	"github.com/abdulachik/recast/internal/notify"
	"github.com/abdulachik/recast/internal/pipeline"
	"github.com/abdulachik/recast/internal/publisher"
	"github.com/abdulachik/recast/internal/relevance"
	"github.com/abdulachik/recast/internal/source"
	"github.com/abdulachik/recast/internal/strategy"
	"github.com/abdulachik/recast/internal/stylestore"
	"github.com/abdulachik/recast/internal/transform"
)

// credentialPurpose scopes the key derived from CREDENTIAL_SECRET.
const credentialPurpose = "platform-tokens"

// App is the main application container holding all dependencies.
type App struct {
	Config      *config.Config
	Store       *db.Store
	Metrics     *metrics.Metrics
	Credentials *credstore.Store
	Archive     *stylestore.Archive
	Runner      *pipeline.Runner

	closers []func() error
}

// OpenStore opens and migrates the database named by cfg.
func OpenStore(ctx context.Context, cfg *config.Config) (*db.Store, error) {
	store, err := db.NewStore(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// OpenCredentials builds the sealed credential store over store.
func OpenCredentials(cfg *config.Config, store *db.Store) (*credstore.Store, error) {
	enc, err := crypto.DeriveEncryptor([]byte(cfg.CredentialSecret), credentialPurpose)
	if err != nil {
		return nil, err
	}
	return credstore.New(store, enc), nil
}

// stageClient bounds every call made through c by the configured stage
// timeout.
func stageClient(cfg *config.Config, c llm.Client) llm.Client {
	return llm.WithTimeout(c, cfg.StageTimeout)
}

// New creates a new application instance with all dependencies wired up.
// Optional collaborators that fail to open are logged and left out.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{
		Config:  cfg,
		Store:   store,
		Metrics: metrics.New(),
		closers: []func() error{store.Close},
	}

	client, err := llm.New(ctx, llm.Config{
		Provider:        cfg.LLMProvider,
		AnthropicAPIKey: cfg.AnthropicAPIKey,
		AnthropicModel:  cfg.AnthropicModel,
		GeminiAPIKey:    cfg.GeminiAPIKey,
		GeminiModel:     cfg.GeminiModel,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	// The generator and the transform chain carry their own timeouts.
	// Everything else shares the stage bound.
	bounded := stageClient(cfg, client)

	if cfg.CredentialSecret != "" {
		a.Credentials, err = OpenCredentials(cfg, store)
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	archive, err := stylestore.Open(stylestore.Config{
		Path:       cfg.StyleIndexPath,
		ConfigPath: cfg.VecLiteConfig,
	})
	if err != nil {
		slog.Warn("style archive unavailable, personalizing from profile examples only", "error", err)
	} else {
		a.Archive = archive
		a.closers = append(a.closers, archive.Close)
		slog.Info("style archive opened", "path", cfg.StyleIndexPath, "posts", archive.Count())
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	pcfg := pipeline.Config{
		Store:          store,
		Source:         a.source(httpClient),
		Analyzer:       analyzer.New(analyzer.Config{Client: bounded, MainStoryRatio: cfg.MainStoryRatio}),
		Strategist:     strategy.New(strategy.Config{Client: bounded, MaxPosts: cfg.MaxSections}),
		Generator:      generator.New(generator.Config{Client: client, Timeout: cfg.GeneratorTimeout}),
		StageTimeout:   cfg.StageTimeout,
		Media:          publisher.NewHTTPMediaSource(httpClient),
		SettleDelay:    cfg.SettleDelay,
		PublishTimeout: cfg.PublishTimeout,
		Notifier:       a.notifier(httpClient),
		Concurrency:    cfg.UnitConcurrency,
		Metrics:        a.Metrics,
	}

	// A nil *Archive must not become a non-nil interface.
	if a.Archive != nil {
		pcfg.Stages = transform.Stages(client, a.Archive, cfg.EnableFinalReview)
		pcfg.Archive = a.Archive
	} else {
		pcfg.Stages = transform.Stages(client, nil, cfg.EnableFinalReview)
	}

	if cfg.EnableImageFilter {
		pcfg.ImageFilter = relevance.NewImageFilter(bounded)
	}
	if cfg.EnableLinkFilter {
		pcfg.LinkFilter = relevance.NewLinkFilter(bounded, relevance.NewFetcher(relevance.FetcherConfig{
			HTTPClient: httpClient,
			Cache:      a.linkCache(),
			Metrics:    a.Metrics,
		}))
	}

	if cfg.RendererURL != "" {
		pcfg.Renderer = publisher.NewHTTPRenderer(cfg.RendererURL, httpClient)
	}

	if a.Credentials != nil {
		pcfg.Credentials = a.Credentials
		pcfg.Platforms = &pipeline.OAuthPlatforms{
			Credentials:      a.Credentials,
			Twitter:          twitterOAuth(cfg),
			LinkedIn:         linkedInOAuth(cfg),
			TwitterAPIURL:    cfg.TwitterAPIURL,
			TwitterUploadURL: cfg.TwitterUploadURL,
			LinkedInAPIURL:   cfg.LinkedInAPIURL,
			Retry: publisher.RetryPolicy{
				BaseDelay:  cfg.RetryBaseDelay,
				MaxDelay:   cfg.RetryMaxDelay,
				MaxRetries: cfg.RetryMaxAttempts,
			},
			Metrics: a.Metrics,
		}
	}

	a.Runner = pipeline.New(pcfg)
	return a, nil
}

func (a *App) source(client *http.Client) source.Provider {
	if a.Config.BeehiivAPIKey != "" {
		return source.NewBeehiivProvider(source.BeehiivConfig{
			HTTPClient:    client,
			APIKey:        a.Config.BeehiivAPIKey,
			PublicationID: a.Config.BeehiivPublicationID,
		})
	}
	return source.NewHTTPProvider(source.HTTPConfig{HTTPClient: client})
}

func (a *App) notifier(client *http.Client) notify.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier()}
	if a.Config.NotifyWebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(notify.WebhookConfig{
			URL:        a.Config.NotifyWebhookURL,
			HTTPClient: client,
		}))
	}
	return notifiers
}

func (a *App) linkCache() relevance.Cache {
	if a.Config.LinkCacheURL == "" {
		return relevance.NewMemoryCache(relevance.DefaultCacheTTL)
	}
	cache, err := relevance.OpenRedisCache(a.Config.LinkCacheURL, relevance.DefaultCacheTTL)
	if err != nil {
		slog.Warn("link cache unavailable, using memory", "error", err)
		return relevance.NewMemoryCache(relevance.DefaultCacheTTL)
	}
	a.closers = append(a.closers, cache.Close)
	return cache
}

func twitterOAuth(cfg *config.Config) *oauth2.Config {
	if cfg.TwitterClientID == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.TwitterClientID,
		ClientSecret: cfg.TwitterClientSecret,
		Endpoint:     credstore.TwitterEndpoint,
		Scopes:       []string{"tweet.read", "tweet.write", "users.read", "media.write", "offline.access"},
	}
}

func linkedInOAuth(cfg *config.Config) *oauth2.Config {
	if cfg.LinkedInClientID == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.LinkedInClientID,
		ClientSecret: cfg.LinkedInClientSecret,
		Endpoint:     credstore.LinkedInEndpoint,
		Scopes:       []string{"w_member_social", "r_basicprofile"},
	}
}

// Close closes all resources in reverse order of opening.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
