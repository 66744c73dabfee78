// Package metrics exposes the measurements award criteria are evaluated against.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aimd54/storefront-badges/internal/config"
	"github.com/aimd54/storefront-badges/internal/models"
	"github.com/aimd54/storefront-badges/internal/repository"
)

// ErrNoData is returned when a point-in-time metric has nothing to measure yet.
var ErrNoData = errors.New("no data")

// Provider measures one metric for a subject. Windowed providers count within
// [start, end]; point-in-time providers ignore the bounds.
type Provider interface {
	Measure(ctx context.Context, subjectID uint, start, end time.Time) (float64, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, subjectID uint, start, end time.Time) (float64, error)

// Measure calls f.
func (f ProviderFunc) Measure(ctx context.Context, subjectID uint, start, end time.Time) (float64, error) {
	return f(ctx, subjectID, start, end)
}

// Source is the read-only query surface over the marketplace tables.
type Source interface {
	AverageRating(ctx context.Context, storeID uint) (*repository.RatingAggregate, error)
	CountStoreViews(ctx context.Context, storeID uint, start, end time.Time) (int64, error)
	CountActorVisits(ctx context.Context, customerID uint, start, end time.Time) (int64, error)
	CountEngagement(ctx context.Context, subjectType string, subjectID uint, kind string, start, end time.Time) (int64, error)
	CountReviewsWritten(ctx context.Context, customerID uint, start, end time.Time) (int64, error)
}

// Registry maps metric names to providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry creates a registry with the built-in providers backed by src.
func NewRegistry(src Source) *Registry {
	r := &Registry{providers: make(map[string]Provider)}

	r.Register(config.MetricAverageRating, ProviderFunc(func(ctx context.Context, storeID uint, _, _ time.Time) (float64, error) {
		agg, err := src.AverageRating(ctx, storeID)
		if err != nil {
			return 0, err
		}
		if agg.Count == 0 {
			return 0, ErrNoData
		}
		return agg.Average, nil
	}))

	r.Register(config.MetricStoreViews, countProvider(src.CountStoreViews))
	r.Register(config.MetricStoreVisits, countProvider(src.CountActorVisits))
	r.Register(config.MetricReviewsWritten, countProvider(src.CountReviewsWritten))

	r.Register(config.MetricBlogViews, countProvider(func(ctx context.Context, storeID uint, start, end time.Time) (int64, error) {
		return src.CountEngagement(ctx, models.SubjectTypeStore, storeID, models.EngagementKindBlogView, start, end)
	}))
	r.Register(config.MetricEngagementActions, countProvider(func(ctx context.Context, customerID uint, start, end time.Time) (int64, error) {
		return src.CountEngagement(ctx, models.SubjectTypeCustomer, customerID, "", start, end)
	}))

	return r
}

func countProvider(count func(ctx context.Context, id uint, start, end time.Time) (int64, error)) Provider {
	return ProviderFunc(func(ctx context.Context, id uint, start, end time.Time) (float64, error) {
		n, err := count(ctx, id, start, end)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	})
}

// Register adds or replaces the provider for metric.
func (r *Registry) Register(metric string, p Provider) {
	r.providers[metric] = p
}

// Get returns the provider for metric.
func (r *Registry) Get(metric string) (Provider, error) {
	p, ok := r.providers[metric]
	if !ok {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	return p, nil
}

// Metrics lists registered metric names in sorted order.
func (r *Registry) Metrics() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
