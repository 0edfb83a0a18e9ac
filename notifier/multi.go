package notifier

import (
	"context"
	"errors"

	"autosearch/models"
)

// Notifier is implemented by every transport in this package.
type Notifier interface {
	Notify(ctx context.Context, result *models.ReconcileResult) error
	NotifyError(ctx context.Context, search, summary string) error
}

// Multi fans every notification out to all of its transports.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, result *models.ReconcileResult) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.Notify(ctx, result))
	}
	return errors.Join(errs...)
}

func (m Multi) NotifyError(ctx context.Context, search, summary string) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.NotifyError(ctx, search, summary))
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*Telegram)(nil)
	_ Notifier = (*Console)(nil)
	_ Notifier = Multi(nil)
)
