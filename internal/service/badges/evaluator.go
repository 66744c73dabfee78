package badges

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/storefront-badges/internal/config"
	prommetrics "github.com/aimd54/storefront-badges/internal/metrics"
	"github.com/aimd54/storefront-badges/internal/models"
	"github.com/aimd54/storefront-badges/internal/service/metrics"
	"github.com/aimd54/storefront-badges/pkg/logger"
)

// Comparator decides whether a measured value satisfies its threshold.
type Comparator func(current, required float64) bool

var comparators = map[string]Comparator{
	"<":  func(current, required float64) bool { return current < required },
	"<=": func(current, required float64) bool { return current <= required },
	">":  func(current, required float64) bool { return current > required },
	">=": func(current, required float64) bool { return current >= required },
	"==": func(current, required float64) bool { return current == required },
}

// LookupComparator returns the comparator for operator.
func LookupComparator(operator string) (Comparator, error) {
	cmp, ok := comparators[operator]
	if !ok {
		return nil, fmt.Errorf("unsupported operator: %s", operator)
	}
	return cmp, nil
}

// Criterion is one named threshold with the provider that measures it.
type Criterion struct {
	Name       string
	Metric     string
	Required   float64
	Operator   string
	Comparator Comparator
	Provider   metrics.Provider
}

// ProviderLookup resolves a metric name to its provider.
type ProviderLookup interface {
	Get(metric string) (metrics.Provider, error)
}

// BuildCriteria resolves configured criteria per subject type against providers.
func BuildCriteria(cfg config.CriteriaConfig, providers ProviderLookup) (map[string][]Criterion, error) {
	out := make(map[string][]Criterion, 2)
	for subjectType, list := range map[string][]config.CriterionConfig{
		models.SubjectTypeStore:    cfg.Store,
		models.SubjectTypeCustomer: cfg.Customer,
	} {
		for _, cc := range list {
			cmp, err := LookupComparator(cc.Comparator)
			if err != nil {
				return nil, fmt.Errorf("criterion %s.%s: %w", subjectType, cc.Name, err)
			}
			p, err := providers.Get(cc.Metric)
			if err != nil {
				return nil, fmt.Errorf("criterion %s.%s: %w", subjectType, cc.Name, err)
			}
			out[subjectType] = append(out[subjectType], Criterion{
				Name:       cc.Name,
				Metric:     cc.Metric,
				Required:   cc.Required,
				Operator:   cc.Comparator,
				Comparator: cmp,
				Provider:   p,
			})
		}
	}
	return out, nil
}

// Evaluator measures every criterion for a subject and compares it to its threshold.
// It never mutates awards.
type Evaluator struct {
	criteria map[string][]Criterion
	timeout  time.Duration
	log      *logger.Logger
}

// NewEvaluator creates an evaluator. Each provider call is bounded by timeout.
func NewEvaluator(criteria map[string][]Criterion, timeout time.Duration, log *logger.Logger) *Evaluator {
	return &Evaluator{
		criteria: criteria,
		timeout:  timeout,
		log:      log,
	}
}

// InitialCriteria returns the all-unmet state a new award starts with.
func (e *Evaluator) InitialCriteria(subjectType string) models.Criteria {
	out := make(models.Criteria, len(e.criteria[subjectType]))
	for _, c := range e.criteria[subjectType] {
		out[c.Name] = models.CriterionState{Required: c.Required, Comparator: c.Operator}
	}
	return out
}

// Evaluate measures all criteria for the subject over window. A provider that fails
// or times out degrades its criterion to current=0, unmet; the others still run.
func (e *Evaluator) Evaluate(ctx context.Context, subjectType string, subjectID uint, window Window) models.Criteria {
	list := e.criteria[subjectType]
	out := make(models.Criteria, len(list))

	for _, c := range list {
		current, err := e.measure(ctx, c, subjectID, window)
		if err != nil {
			prommetrics.RecordMetricUnavailable(c.Metric)
			e.log.Warn().
				Err(err).
				Str("subject_type", subjectType).
				Uint("subject_id", subjectID).
				Str("criterion", c.Name).
				Msg("Criterion degraded to unmet")

			out[c.Name] = models.CriterionState{
				Current:     0,
				Required:    c.Required,
				Comparator:  c.Operator,
				Met:         false,
				Unavailable: true,
			}
			continue
		}

		out[c.Name] = models.CriterionState{
			Current:    current,
			Required:   c.Required,
			Comparator: c.Operator,
			Met:        c.Comparator(current, c.Required),
		}
	}

	return out
}

func (e *Evaluator) measure(ctx context.Context, c Criterion, subjectID uint, window Window) (float64, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type result struct {
		value float64
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := c.Provider.Measure(ctx, subjectID, window.Start, window.End)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrMetricUnavailable, c.Metric, r.err)
		}
		return r.value, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %s: %w", ErrMetricUnavailable, c.Metric, ctx.Err())
	}
}

// IsMetricUnavailable reports whether err came from a degraded measurement.
func IsMetricUnavailable(err error) bool {
	return errors.Is(err, ErrMetricUnavailable)
}
