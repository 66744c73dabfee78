package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCriteria_AllMet(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     bool
	}{
		{name: "empty is never met", criteria: Criteria{}, want: false},
		{name: "nil is never met", criteria: nil, want: false},
		{
			name: "all met",
			criteria: Criteria{
				"store_rating":  {Current: 4.8, Required: 4.5, Met: true},
				"profile_views": {Current: 210, Required: 200, Met: true},
			},
			want: true,
		},
		{
			name: "one unmet",
			criteria: Criteria{
				"store_rating": {Current: 4.8, Required: 4.5, Met: true},
				"blog_views":   {Current: 0, Required: 100, Met: false},
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.criteria.AllMet())
		})
	}
}

func TestAward_IsCurrentlyActive(t *testing.T) {
	now := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)

	active := &Award{Active: true, ExpiresAt: now.Add(time.Hour)}
	assert.True(t, active.IsCurrentlyActive(now))

	stale := &Award{Active: true, ExpiresAt: now.Add(-time.Hour)}
	assert.False(t, stale.IsCurrentlyActive(now), "expired award must not read as active even if flag is set")

	atExpiry := &Award{Active: true, ExpiresAt: now}
	assert.False(t, atExpiry.IsCurrentlyActive(now))

	pending := &Award{Active: false, ExpiresAt: now.Add(time.Hour)}
	assert.False(t, pending.IsCurrentlyActive(now))
}

func TestAward_CriteriaRoundTrip(t *testing.T) {
	a := &Award{}
	a.SetCriteria(Criteria{"reviews_written": {Current: 3, Required: 3, Comparator: ">=", Met: true}})

	got := a.CriteriaMap()
	assert.Len(t, got, 1)
	assert.True(t, got["reviews_written"].Met)
	assert.False(t, a.WasEverAwarded())
}
