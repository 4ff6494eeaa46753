package publisher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/abdulachik/recast/internal/content"
)

// RetryPolicy holds the backoff constants for rate limited calls. Only
// HTTP 429 is retried; the delay starts at BaseDelay and doubles up to
// MaxDelay.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultRetryPolicy waits 10s, 20s, 40s... for up to 5 retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  10 * time.Second,
		MaxDelay:   5 * time.Minute,
		MaxRetries: 5,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	return p
}

// response is a fully read HTTP response, so retried attempts never leak
// bodies.
type response struct {
	status int
	header http.Header
	body   []byte
}

func (r *response) ok() bool {
	return r.status >= 200 && r.status < 300
}

//nolint:bodyclose // response is a buffered copy, not an *http.Response
func (p RetryPolicy) build() retrypolicy.RetryPolicy[*response] {
	p = p.normalize()
	return retrypolicy.NewBuilder[*response]().
		WithBackoff(p.BaseDelay, p.MaxDelay).
		WithMaxRetries(p.MaxRetries).
		HandleIf(func(r *response, err error) bool {
			return err == nil && r != nil && r.status == http.StatusTooManyRequests
		}).
		Build()
}

// execute runs call under the policy. A 2xx response is returned as is.
// A 429 that outlives the retries, or any other non-2xx, becomes a
// *content.ServiceError. onRetry is called before each retried attempt.
func (p RetryPolicy) execute(ctx context.Context, service string, call func(ctx context.Context) (*response, error), onRetry func()) (*response, error) {
	var last *response
	attempts := 0

	_, err := failsafe.With(p.build()).WithContext(ctx).Get(func() (*response, error) {
		if attempts > 0 && onRetry != nil {
			onRetry()
		}
		attempts++
		r, err := call(ctx)
		if err != nil {
			last = nil
			return nil, err
		}
		last = r
		return r, nil
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("%s: %w", service, ctxErr)
	}
	if last == nil {
		if err == nil {
			err = fmt.Errorf("no response")
		}
		return nil, fmt.Errorf("%s: %w: %v", service, content.ErrExternalService, err)
	}
	if !last.ok() {
		return nil, &content.ServiceError{Service: service, StatusCode: last.status, Body: string(last.body)}
	}
	return last, nil
}

// send performs req and buffers the response.
func send(client *http.Client, req *http.Request) (*response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &response{status: resp.StatusCode, header: resp.Header, body: body}, nil
}
