package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/abdulachik/recast/internal/content"
	"github.com/abdulachik/recast/internal/credstore"
	"github.com/abdulachik/recast/internal/metrics"
	"github.com/abdulachik/recast/internal/publisher"
)

// PlatformFactory builds the posting client of one account on one platform
// from credentials read at run start.
type PlatformFactory interface {
	Platform(ctx context.Context, accountID string, rec credstore.Record, p content.Platform) (publisher.Platform, error)
}

// OAuthPlatforms builds platform clients whose HTTP clients refresh and
// persist OAuth tokens through the credential store.
type OAuthPlatforms struct {
	Credentials *credstore.Store
	Twitter     *oauth2.Config
	LinkedIn    *oauth2.Config

	TwitterAPIURL    string
	TwitterUploadURL string
	LinkedInAPIURL   string

	Retry   publisher.RetryPolicy
	Metrics *metrics.Metrics
}

// Platform implements PlatformFactory.
func (o *OAuthPlatforms) Platform(ctx context.Context, accountID string, rec credstore.Record, p content.Platform) (publisher.Platform, error) {
	switch p {
	case content.PlatformTwitter:
		if o.Twitter == nil {
			return nil, fmt.Errorf("%w: twitter oauth client is not configured", content.ErrConfiguration)
		}
		client, err := o.Credentials.HTTPClient(ctx, accountID, p, rec, o.Twitter)
		if err != nil {
			return nil, err
		}
		return publisher.NewTwitterClient(publisher.TwitterConfig{
			HTTPClient: client,
			APIURL:     o.TwitterAPIURL,
			UploadURL:  o.TwitterUploadURL,
			Retry:      o.Retry,
			Metrics:    o.Metrics,
		}), nil

	case content.PlatformLinkedIn:
		if o.LinkedIn == nil {
			return nil, fmt.Errorf("%w: linkedin oauth client is not configured", content.ErrConfiguration)
		}
		client, err := o.Credentials.HTTPClient(ctx, accountID, p, rec, o.LinkedIn)
		if err != nil {
			return nil, err
		}
		return publisher.NewLinkedInClient(publisher.LinkedInConfig{
			HTTPClient: client,
			APIURL:     o.LinkedInAPIURL,
			Author:     rec.LinkedInAuthor,
			Retry:      o.Retry,
			Metrics:    o.Metrics,
		}), nil
	}
	return nil, fmt.Errorf("%w: unknown platform %q", content.ErrConfiguration, p)
}
