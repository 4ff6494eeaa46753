package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookNotifier posts notifications as JSON to a URL, e.g. a Slack or
// Discord incoming webhook relay.
type WebhookNotifier struct {
	httpClient *http.Client
	url        string
}

// WebhookConfig holds configuration for webhook notifications.
type WebhookConfig struct {
	URL        string
	HTTPClient *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(cfg WebhookConfig) *WebhookNotifier {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{httpClient: client, url: cfg.URL}
}

type webhookPayload struct {
	Text      string   `json:"text"`
	RunID     string   `json:"run_id"`
	AccountID string   `json:"account_id"`
	Status    string   `json:"status"`
	Success   bool     `json:"success"`
	PostURLs  []string `json:"post_urls,omitempty"`
}

// Send posts the notification.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(webhookPayload{
		Text:      n.Subject + "\n" + n.Body,
		RunID:     n.RunID,
		AccountID: n.AccountID,
		Status:    n.Status,
		Success:   n.Success,
		PostURLs:  n.PostURLs,
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook failed (status %d): %s", resp.StatusCode, string(respBody))
	}
	return nil
}
