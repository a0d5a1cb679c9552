package storage

import (
	"context"

	"github.com/JakeFAU/aur-crawler/internal/metrics"
	"github.com/JakeFAU/aur-crawler/internal/models"
)

// Instrumented counts every call of the wrapped Storage.
type Instrumented struct {
	Storage
}

// Instrument wraps s with call metrics.
func Instrument(s Storage) *Instrumented {
	return &Instrumented{Storage: s}
}

// HealthCheck implements Storage.
func (i *Instrumented) HealthCheck(ctx context.Context) error {
	err := i.Storage.HealthCheck(ctx)
	metrics.ObserveStorage(i.BackendName(), "health", err)
	return err //nolint:wrapcheck // backends already wrap
}

// Insert implements Storage.
func (i *Instrumented) Insert(ctx context.Context, item models.Item) error {
	err := i.Storage.Insert(ctx, item)
	metrics.ObserveStorage(i.BackendName(), "insert", err)
	return err //nolint:wrapcheck // backends already wrap
}

// Get implements Storage.
func (i *Instrumented) Get(ctx context.Context, name string) (models.Item, error) {
	item, err := i.Storage.Get(ctx, name)
	metrics.ObserveStorage(i.BackendName(), "get", err)
	return item, err //nolint:wrapcheck // backends already wrap
}
