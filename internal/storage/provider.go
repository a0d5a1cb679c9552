// Package storage defines the persistence contract shared by every package
// backend. Callers depend only on Storage; each backend decomposes an item
// into its own native shape on write and rebuilds it on read.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/aur-crawler/internal/models"
)

// Kind names a backend variant.
type Kind string

// Supported backend kinds.
const (
	KindRedis         Kind = "redis"
	KindPostgres      Kind = "postgres"
	KindElasticsearch Kind = "elasticsearch"
	KindMemory        Kind = "memory"
	KindNoOp          Kind = "noop"
)

var (
	// ErrBackendUnavailable is matched when a backend cannot be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrNotFound is matched when no item exists under the requested name.
	ErrNotFound = errors.New("item not found")
	// ErrDecode is matched when stored data cannot be rebuilt into an item.
	ErrDecode = errors.New("decode stored item")
	// ErrUnknownBackend is returned for connection strings with an unsupported scheme.
	ErrUnknownBackend = errors.New("unknown storage backend")
)

// Storage persists and reads back complete items keyed by name. Implementations
// are safe for concurrent use.
type Storage interface {
	// HealthCheck verifies connectivity.
	HealthCheck(ctx context.Context) error
	// Insert upserts item by name. Repeated inserts overwrite.
	Insert(ctx context.Context, item models.Item) error
	// Get rebuilds the item stored under name.
	Get(ctx context.Context, name string) (models.Item, error)
	// BackendName identifies the backend in logs.
	BackendName() string
	// Close releases connections.
	Close() error
}

// Unavailable wraps err so that it matches ErrBackendUnavailable.
func Unavailable(backend string, err error) error {
	return fmt.Errorf("%s: %w: %w", backend, ErrBackendUnavailable, err)
}

// NotFound reports a missing item.
func NotFound(backend, name string) error {
	return fmt.Errorf("%s: %q: %w", backend, name, ErrNotFound)
}

// Decode wraps err so that it matches ErrDecode.
func Decode(backend, name string, err error) error {
	return fmt.Errorf("%s: %q: %w: %w", backend, name, ErrDecode, err)
}

// IgnoreAlreadyExists returns nil when alreadyExists reports err as a duplicate
// create, and err unchanged otherwise.
func IgnoreAlreadyExists(err error, alreadyExists func(error) bool) error {
	if err == nil || alreadyExists(err) {
		return nil
	}
	return err
}

// NoOp discards every insert. It backs noop:// for crawl dry runs that should
// not hold items in memory.
type NoOp struct{}

// HealthCheck always succeeds.
func (NoOp) HealthCheck(context.Context) error { return nil }

// Insert does nothing.
func (NoOp) Insert(context.Context, models.Item) error { return nil }

// Get always reports ErrNotFound.
func (NoOp) Get(_ context.Context, name string) (models.Item, error) {
	return models.Item{}, NotFound("noop", name)
}

// BackendName returns "noop".
func (NoOp) BackendName() string { return "noop" }

// Close does nothing.
func (NoOp) Close() error { return nil }
