package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/JakeFAU/aur-crawler/internal/models"
)

// MockStorage is a mock implementation of the Storage interface for testing.
type MockStorage struct {
	mock.Mock
}

// HealthCheck is the mock implementation of the HealthCheck method.
func (m *MockStorage) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0) //nolint:wrapcheck
}

// Insert is the mock implementation of the Insert method.
func (m *MockStorage) Insert(ctx context.Context, item models.Item) error {
	args := m.Called(ctx, item)
	return args.Error(0) //nolint:wrapcheck
}

// Get is the mock implementation of the Get method.
func (m *MockStorage) Get(ctx context.Context, name string) (models.Item, error) {
	args := m.Called(ctx, name)
	item, _ := args.Get(0).(models.Item)
	return item, args.Error(1) //nolint:wrapcheck
}

// BackendName is the mock implementation of the BackendName method.
func (m *MockStorage) BackendName() string {
	args := m.Called()
	return args.String(0)
}

// Close is the mock implementation of the Close method.
func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0) //nolint:wrapcheck
}
