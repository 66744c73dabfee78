package repository

import (
	"context"
	"fmt"

	"github.com/aimd54/storefront-badges/internal/models"
)

// SubjectRepository answers existence and listing questions about stores and customers.
// The tables are owned by the marketplace; this repository only reads them.
type SubjectRepository struct {
	db *DB
}

// NewSubjectRepository creates a new subject repository.
func NewSubjectRepository(db *DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

func subjectModel(subjectType string) (interface{}, error) {
	switch subjectType {
	case models.SubjectTypeStore:
		return &models.Store{}, nil
	case models.SubjectTypeCustomer:
		return &models.Customer{}, nil
	default:
		return nil, fmt.Errorf("unknown subject type %q", subjectType)
	}
}

// Exists reports whether the subject row exists.
func (r *SubjectRepository) Exists(ctx context.Context, subjectType string, id uint) (bool, error) {
	model, err := subjectModel(subjectType)
	if err != nil {
		return false, err
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check %s %d: %w", subjectType, id, err)
	}
	return count > 0, nil
}

// ListIDs returns every subject id of the given type in ascending order.
func (r *SubjectRepository) ListIDs(ctx context.Context, subjectType string) ([]uint, error) {
	model, err := subjectModel(subjectType)
	if err != nil {
		return nil, err
	}

	var ids []uint
	if err := r.db.WithContext(ctx).Model(model).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s ids: %w", subjectType, err)
	}
	return ids, nil
}

// GetStore retrieves a store by its ID.
func (r *SubjectRepository) GetStore(ctx context.Context, id uint) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).First(&store, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &store, nil
}

// CreateStore inserts a store. Used by seeding and tests.
func (r *SubjectRepository) CreateStore(ctx context.Context, store *models.Store) error {
	if err := r.db.WithContext(ctx).Create(store).Error; err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	return nil
}

// CreateCustomer inserts a customer. Used by seeding and tests.
func (r *SubjectRepository) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	if err := r.db.WithContext(ctx).Create(customer).Error; err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}
