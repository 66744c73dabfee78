// Package models defines domain models for the storefront badge engine.
package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubjectType constants.
const (
	SubjectTypeStore    = "store"
	SubjectTypeCustomer = "customer"
)

// SubjectTypes lists every subject type the engine scores.
var SubjectTypes = []string{SubjectTypeStore, SubjectTypeCustomer}

// IsValidSubjectType reports whether t names a known subject type.
func IsValidSubjectType(t string) bool {
	return t == SubjectTypeStore || t == SubjectTypeCustomer
}

// CriterionState is one measured dimension of eligibility.
type CriterionState struct {
	Current     float64 `json:"current"`
	Required    float64 `json:"required"`
	Comparator  string  `json:"comparator"`
	Met         bool    `json:"met"`
	Unavailable bool    `json:"unavailable,omitempty"` // provider failed or timed out
}

// Criteria maps criterion name to its state.
type Criteria map[string]CriterionState

// AllMet reports whether every criterion is met. An empty set is never met.
func (c Criteria) AllMet() bool {
	if len(c) == 0 {
		return false
	}
	for _, state := range c {
		if !state.Met {
			return false
		}
	}
	return true
}

// Award is the per-subject, per-week eligibility record.
type Award struct {
	ID                      uint                         `gorm:"primaryKey" json:"id"`
	SubjectType             string                       `gorm:"size:20;not null;uniqueIndex:idx_award_window,priority:1" json:"subject_type"`
	SubjectID               uint                         `gorm:"not null;uniqueIndex:idx_award_window,priority:2" json:"subject_id"`
	WindowStart             time.Time                    `gorm:"not null;uniqueIndex:idx_award_window,priority:3" json:"window_start"`
	WindowEnd               time.Time                    `gorm:"not null;uniqueIndex:idx_award_window,priority:4" json:"window_end"`
	Criteria                datatypes.JSONType[Criteria] `json:"criteria"`
	Active                  bool                         `gorm:"not null;default:false;index" json:"active"`
	AwardedAt               *time.Time                   `json:"awarded_at"`
	ExpiresAt               time.Time                    `gorm:"not null;index" json:"expires_at"`
	CelebrationAcknowledged bool                         `gorm:"not null;default:false" json:"celebration_acknowledged"`
	LastEvaluatedAt         *time.Time                   `json:"last_evaluated_at"`
	CreatedAt               time.Time                    `json:"created_at"`
	UpdatedAt               time.Time                    `json:"updated_at"`
}

// TableName specifies the table name for Award model.
func (Award) TableName() string {
	return "awards"
}

// CriteriaMap returns the embedded criterion states.
func (a *Award) CriteriaMap() Criteria {
	return a.Criteria.Data()
}

// SetCriteria replaces the criterion states wholesale.
func (a *Award) SetCriteria(c Criteria) {
	a.Criteria = datatypes.NewJSONType(c)
}

// IsCurrentlyActive applies the read-time rule: the stored flag alone is not enough,
// the award must also not be past its expiry.
func (a *Award) IsCurrentlyActive(now time.Time) bool {
	return a.Active && a.ExpiresAt.After(now)
}

// IsWindowClosed reports whether the scoring week is over.
func (a *Award) IsWindowClosed(now time.Time) bool {
	return now.After(a.WindowEnd)
}

// WasEverAwarded reports whether the award activated at least once in its window.
func (a *Award) WasEverAwarded() bool {
	return a.AwardedAt != nil
}
