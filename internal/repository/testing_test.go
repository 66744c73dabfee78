package repository

import (
	"context"
	"testing"
	"time"

	"github.com/aimd54/storefront-badges/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := OpenSQLite(":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	})
	return db
}

func createTestStore(t *testing.T, db *DB, slug string) *models.Store {
	t.Helper()

	store := &models.Store{Name: slug, Slug: slug}
	if err := NewSubjectRepository(db).CreateStore(context.Background(), store); err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	return store
}

func createTestCustomer(t *testing.T, db *DB, email string) *models.Customer {
	t.Helper()

	customer := &models.Customer{Name: email, Email: email}
	if err := NewSubjectRepository(db).CreateCustomer(context.Background(), customer); err != nil {
		t.Fatalf("Failed to create test customer: %v", err)
	}
	return customer
}

// testWindow is Sunday 2024-03-10 through Saturday 2024-03-16 in UTC.
func testWindow() (time.Time, time.Time) {
	start := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7).Add(-time.Millisecond)
	return start, end
}

func newPendingAward(subjectType string, subjectID uint, start, end time.Time) *models.Award {
	award := &models.Award{
		SubjectType: subjectType,
		SubjectID:   subjectID,
		WindowStart: start,
		WindowEnd:   end,
		ExpiresAt:   end.Add(7 * 24 * time.Hour),
	}
	award.SetCriteria(models.Criteria{})
	return award
}
