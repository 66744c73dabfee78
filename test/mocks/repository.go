package mocks

import (
	"context"

	"github.com/aimd54/storefront-badges/internal/models"
)

// MockEventStore is a simple mock for the activity event store
type MockEventStore struct {
	InsertFunc func(ctx context.Context, event *models.ActivityEvent) (bool, error)
}

func (m *MockEventStore) Insert(ctx context.Context, event *models.ActivityEvent) (bool, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, event)
	}
	return true, nil
}

// MockSubjectRepository is a simple mock for subject lookups. Every subject exists
// unless a Func says otherwise.
type MockSubjectRepository struct {
	GetStoreFunc func(ctx context.Context, id uint) (*models.Store, error)
	ExistsFunc   func(ctx context.Context, subjectType string, id uint) (bool, error)
	ListIDsFunc  func(ctx context.Context, subjectType string) ([]uint, error)
}

func (m *MockSubjectRepository) GetStore(ctx context.Context, id uint) (*models.Store, error) {
	if m.GetStoreFunc != nil {
		return m.GetStoreFunc(ctx, id)
	}
	return &models.Store{ID: id}, nil
}

func (m *MockSubjectRepository) Exists(ctx context.Context, subjectType string, id uint) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, subjectType, id)
	}
	return true, nil
}

func (m *MockSubjectRepository) ListIDs(ctx context.Context, subjectType string) ([]uint, error) {
	if m.ListIDsFunc != nil {
		return m.ListIDsFunc(ctx, subjectType)
	}
	return []uint{}, nil
}
