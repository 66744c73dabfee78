package badges

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aimd54/storefront-badges/internal/models"
	"github.com/aimd54/storefront-badges/internal/repository"
)

// memAwardRepository is an in-memory AwardRepository with the same compare-and-set
// semantics as the SQL implementation.
type memAwardRepository struct {
	mu     sync.Mutex
	nextID uint
	awards map[uint]*models.Award

	// ignoreExpiry makes GetLatestActive trust the stored flag only.
	ignoreExpiry bool
	failWith     error
}

func newMemAwardRepository() *memAwardRepository {
	return &memAwardRepository{nextID: 1, awards: make(map[uint]*models.Award)}
}

func cloneAward(a *models.Award) *models.Award {
	c := *a
	c.SetCriteria(a.CriteriaMap())
	return &c
}

func (m *memAwardRepository) FindOrCreate(_ context.Context, candidate *models.Award) (*models.Award, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, false, m.failWith
	}

	for _, a := range m.awards {
		if a.SubjectType == candidate.SubjectType && a.SubjectID == candidate.SubjectID &&
			a.WindowStart.Equal(candidate.WindowStart) && a.WindowEnd.Equal(candidate.WindowEnd) {
			return cloneAward(a), false, nil
		}
	}

	stored := cloneAward(candidate)
	stored.ID = m.nextID
	m.nextID++
	m.awards[stored.ID] = stored
	return cloneAward(stored), true, nil
}

func (m *memAwardRepository) put(a *models.Award) *models.Award {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := cloneAward(a)
	stored.ID = m.nextID
	m.nextID++
	m.awards[stored.ID] = stored
	return cloneAward(stored)
}

func (m *memAwardRepository) GetByID(_ context.Context, id uint) (*models.Award, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.awards[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneAward(a), nil
}

func (m *memAwardRepository) SaveEvaluation(_ context.Context, id uint, criteria models.Criteria, evaluatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.awards[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.SetCriteria(criteria)
	a.Active = false
	a.LastEvaluatedAt = &evaluatedAt
	return nil
}

func (m *memAwardRepository) Activate(_ context.Context, id uint, criteria models.Criteria, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.awards[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	a.SetCriteria(criteria)
	a.Active = true
	a.LastEvaluatedAt = &now
	if a.AwardedAt != nil {
		return false, nil
	}
	a.AwardedAt = &now
	return true, nil
}

func (m *memAwardRepository) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	var n int64
	for _, a := range m.awards {
		if a.Active && !a.ExpiresAt.After(now) && a.WindowEnd.Before(now) {
			a.Active = false
			n++
		}
	}
	return n, nil
}

func (m *memAwardRepository) GetLatestActive(_ context.Context, subjectType string, subjectID uint, now time.Time) (*models.Award, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *models.Award
	for _, a := range m.awards {
		if a.SubjectType != subjectType || a.SubjectID != subjectID || !a.Active {
			continue
		}
		if !m.ignoreExpiry && !a.ExpiresAt.After(now) {
			continue
		}
		if best == nil || a.WindowStart.After(best.WindowStart) {
			best = a
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	return cloneAward(best), nil
}

func (m *memAwardRepository) List(_ context.Context, filter repository.AwardFilter) ([]models.Award, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []models.Award
	for _, a := range m.awards {
		if filter.SubjectType != "" && a.SubjectType != filter.SubjectType {
			continue
		}
		if filter.Active != nil && a.IsCurrentlyActive(filter.Now) != *filter.Active {
			continue
		}
		matched = append(matched, *cloneAward(a))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].WindowStart.Equal(matched[j].WindowStart) {
			return matched[i].WindowStart.After(matched[j].WindowStart)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], total, nil
}

func (m *memAwardRepository) AcknowledgeCelebration(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.awards[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.CelebrationAcknowledged = true
	return nil
}

func (m *memAwardRepository) Counts(_ context.Context, subjectType string, now, windowStart, windowEnd time.Time) (*repository.AwardCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := &repository.AwardCounts{}
	for _, a := range m.awards {
		if a.SubjectType != subjectType {
			continue
		}
		counts.Total++
		if a.IsCurrentlyActive(now) {
			counts.Active++
		}
		if a.AwardedAt != nil && !a.AwardedAt.Before(windowStart) && !a.AwardedAt.After(windowEnd) {
			counts.NewThisWindow++
		}
	}
	return counts, nil
}

// mockSubjectRepository knows a fixed set of subjects.
type mockSubjectRepository struct {
	ids      map[string][]uint
	existErr error
}

func (m *mockSubjectRepository) Exists(_ context.Context, subjectType string, id uint) (bool, error) {
	if m.existErr != nil {
		return false, m.existErr
	}
	for _, known := range m.ids[subjectType] {
		if known == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSubjectRepository) ListIDs(_ context.Context, subjectType string) ([]uint, error) {
	return m.ids[subjectType], nil
}

// countingNotifier records every notification and the state of its context.
type countingNotifier struct {
	calls       atomic.Int64
	mu          sync.Mutex
	last        *models.Award
	ctxErr      error
	hadDeadline bool
	err         error
}

func (n *countingNotifier) NotifyAwarded(ctx context.Context, award *models.Award) error {
	n.calls.Add(1)
	n.mu.Lock()
	n.last = award
	n.ctxErr = ctx.Err()
	_, n.hadDeadline = ctx.Deadline()
	n.mu.Unlock()
	return n.err
}

// cancelOnActivate cancels the caller's context right after the activation commits.
type cancelOnActivate struct {
	*memAwardRepository
	cancel context.CancelFunc
}

func (c *cancelOnActivate) Activate(ctx context.Context, id uint, criteria models.Criteria, now time.Time) (bool, error) {
	newly, err := c.memAwardRepository.Activate(ctx, id, criteria, now)
	c.cancel()
	return newly, err
}

// stubLocker records lock keys and optionally fails.
type stubLocker struct {
	mu      sync.Mutex
	keys    []string
	err     error
	unlocks int
}

func (l *stubLocker) Lock(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, l.err
	}
	return func() {
		l.mu.Lock()
		l.unlocks++
		l.mu.Unlock()
	}, nil
}
