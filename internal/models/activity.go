package models

import (
	"time"
)

// DateBucketLayout is the calendar-day format used to deduplicate activity events.
const DateBucketLayout = "2006-01-02"

// ActivityEvent represents one actor's visit to one subject on one calendar day.
// Rows are append-only.
type ActivityEvent struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SubjectID  uint      `gorm:"not null;uniqueIndex:idx_activity_event_dedup,priority:1;index:idx_activity_event_subject_time,priority:1" json:"subject_id"`
	ActorID    uint      `gorm:"not null;uniqueIndex:idx_activity_event_dedup,priority:2;index" json:"actor_id"`
	DateBucket string    `gorm:"size:10;not null;uniqueIndex:idx_activity_event_dedup,priority:3" json:"date_bucket"`
	OccurredAt time.Time `gorm:"not null;index:idx_activity_event_subject_time,priority:2" json:"occurred_at"`
	IPAddress  string    `gorm:"size:64" json:"ip_address"`
	UserAgent  string    `gorm:"type:text" json:"user_agent"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for ActivityEvent model.
func (ActivityEvent) TableName() string {
	return "activity_events"
}

// EngagementAction kinds.
const (
	EngagementKindBlogView = "blog_view"
	EngagementKindLike     = "like"
	EngagementKindComment  = "comment"
	EngagementKindShare    = "share"
)

// EngagementAction is a qualifying engagement recorded by the content side of the
// marketplace. The badge engine only reads it.
type EngagementAction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SubjectType string    `gorm:"size:20;not null;index:idx_engagement_subject,priority:1" json:"subject_type"`
	SubjectID   uint      `gorm:"not null;index:idx_engagement_subject,priority:2" json:"subject_id"`
	Kind        string    `gorm:"size:30;not null;index:idx_engagement_subject,priority:3" json:"kind"`
	OccurredAt  time.Time `gorm:"not null;index" json:"occurred_at"`
}

// TableName specifies the table name for EngagementAction model.
func (EngagementAction) TableName() string {
	return "engagement_actions"
}
