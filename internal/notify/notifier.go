// Package notify reports finished runs to the operator.
package notify

import (
	"context"
	"errors"
)

// Notification describes one finished run.
type Notification struct {
	Subject string
	Body    string

	RunID     string
	AccountID string
	Status    string
	Success   bool
	PostURLs  []string
}

// Notifier is the interface for sending notifications.
type Notifier interface {
	Send(ctx context.Context, notification Notification) error
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

// Send sends n to every notifier, even when an earlier one fails.
func (m Multi) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if notifier == nil {
			continue
		}
		if err := notifier.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
