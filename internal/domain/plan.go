package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PlanStatus type for the weekly plan lifecycle.
type PlanStatus string

const (
	PlanDraft      PlanStatus = "draft"
	PlanActive     PlanStatus = "active"
	PlanSuperseded PlanStatus = "superseded" // replaced by a newer active plan for the same week
)

// TrackingBrief is a per-tracked-domain numeric target computed once per week
// (e.g. daily calories, protein grams, sleep hours).
type TrackingBrief struct {
	Metric string  `bson:"metric" json:"metric"`
	Target float64 `bson:"target" json:"target"`
	Unit   string  `bson:"unit" json:"unit"`
}

// WeeklyPlan represents one user's plan for one ISO week.
// At most one plan per (user, weekStart) is active at a time; a draft may
// coexist with an active plan only during the review window before confirm.
type WeeklyPlan struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"userId" json:"userId"`
	WeekStart time.Time          `bson:"weekStart" json:"weekStart"` // Monday 00:00 UTC
	Status    PlanStatus         `bson:"status" json:"status"`

	Intro          string                     `bson:"intro,omitempty" json:"intro,omitempty"`
	TrackingBriefs map[Domain][]TrackingBrief `bson:"trackingBriefs,omitempty" json:"trackingBriefs,omitempty"`

	// ArchiveKey is the object-storage key of this plan's snapshot, set when
	// the plan is superseded and archived. Empty when no snapshot exists.
	ArchiveKey string `bson:"archiveKey,omitempty" json:"-"`

	// ReplanFrom is set on drafts produced by a mid-week replan. Completed
	// sessions of the superseded plan dated before this cutoff are carried
	// over unchanged when the draft is confirmed.
	ReplanFrom *time.Time `bson:"replanFrom,omitempty" json:"replanFrom,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// WeekStartOf normalizes t to the Monday 00:00 UTC of its ISO week.
func WeekStartOf(t time.Time) time.Time {
	t = t.UTC()
	day := (int(t.Weekday()) + 6) % 7 // Monday = 0
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -day)
}

// DayOfWeekOf returns the 0 (Mon) - 6 (Sun) index of t.
func DayOfWeekOf(t time.Time) int {
	return (int(t.UTC().Weekday()) + 6) % 7
}
