package services

import (
	"context"

	"autosearch/models"
)

// Fetcher returns one page of results for one model of a search. A failed
// fetch returns an error, never an empty page.
type Fetcher interface {
	Fetch(ctx context.Context, f models.FilterSpec, model string, page int) (*models.ResultPage, error)
}

// Notifier delivers cycle deltas and operational errors to the operator.
type Notifier interface {
	Notify(ctx context.Context, result *models.ReconcileResult) error
	NotifyError(ctx context.Context, search, summary string) error
}
