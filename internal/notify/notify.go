// Package notify fans award activations out to the configured channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/storefront-badges/internal/models"
)

// Notifier is told when an award first activates in its window.
type Notifier interface {
	NotifyAwarded(ctx context.Context, award *models.Award) error
}

// AwardActivated is the payload published for an activation.
type AwardActivated struct {
	AwardID     uint            `json:"award_id"`
	SubjectType string          `json:"subject_type"`
	SubjectID   uint            `json:"subject_id"`
	WindowStart time.Time       `json:"window_start"`
	WindowEnd   time.Time       `json:"window_end"`
	AwardedAt   *time.Time      `json:"awarded_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
	Criteria    models.Criteria `json:"criteria"`
}

// NewAwardActivated builds the event from an award.
func NewAwardActivated(award *models.Award) AwardActivated {
	return AwardActivated{
		AwardID:     award.ID,
		SubjectType: award.SubjectType,
		SubjectID:   award.SubjectID,
		WindowStart: award.WindowStart,
		WindowEnd:   award.WindowEnd,
		AwardedAt:   award.AwardedAt,
		ExpiresAt:   award.ExpiresAt,
		Criteria:    award.CriteriaMap(),
	}
}

// Named pairs a notifier with the label used in errors and metrics.
type Named struct {
	Name     string
	Notifier Notifier
}

// Multi delivers to every notifier even when some fail.
type Multi struct {
	targets []Named
}

// NewMulti creates a fan-out notifier.
func NewMulti(targets ...Named) *Multi {
	return &Multi{targets: targets}
}

// Len returns the number of targets.
func (m *Multi) Len() int {
	return len(m.targets)
}

// NotifyAwarded implements Notifier. The returned error joins every target's failure.
func (m *Multi) NotifyAwarded(ctx context.Context, award *models.Award) error {
	var errs []error
	for _, t := range m.targets {
		if err := t.Notifier.NotifyAwarded(ctx, award); err != nil {
			errs = append(errs, &Error{Notifier: t.Name, Err: err})
		}
	}
	return errors.Join(errs...)
}

// Error is a delivery failure from one notifier.
type Error struct {
	Notifier string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("notifier %s: %v", e.Notifier, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// FailedNotifiers lists the notifier names found in err.
func FailedNotifiers(err error) []string {
	if err == nil {
		return nil
	}
	var names []string
	var walk func(error)
	walk = func(e error) {
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		var ne *Error
		if errors.As(e, &ne) {
			names = append(names, ne.Notifier)
		}
	}
	walk(err)
	return names
}

// Noop is a Notifier that does nothing (used when no channel is configured).
type Noop struct{}

// NotifyAwarded implements Notifier.
func (Noop) NotifyAwarded(context.Context, *models.Award) error {
	return nil
}
