package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SessionStatus type for the session lifecycle.
type SessionStatus string

const (
	SessionPlanned   SessionStatus = "planned"
	SessionCompleted SessionStatus = "completed"
	SessionSkipped   SessionStatus = "skipped"
)

// Final reports whether the status is terminal. Transitions are monotone:
// planned -> completed or planned -> skipped, never back.
func (s SessionStatus) Final() bool {
	return s == SessionCompleted || s == SessionSkipped
}

// SessionDetail is the domain-specific payload of a session. Its shape depends
// on the domain (e.g. cardio carries a zone and a duration, strength carries
// exercise blocks). Field names are tolerated via alias resolution at
// validation time, not normalized on write.
type SessionDetail map[string]any

// Clone returns a shallow copy of the detail map.
func (d SessionDetail) Clone() SessionDetail {
	if d == nil {
		return nil
	}
	out := make(SessionDetail, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Merge applies a shallow merge-patch: keys present in patch overwrite,
// unspecified keys survive. Returns the merged copy; the receiver is not
// mutated.
func (d SessionDetail) Merge(patch SessionDetail) SessionDetail {
	out := d.Clone()
	if out == nil {
		out = make(SessionDetail, len(patch))
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Session represents a planned (or logged) unit of activity.
type Session struct {
	ID     primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	PlanID *primitive.ObjectID `bson:"planId,omitempty" json:"planId,omitempty"` // nil for extra sessions logged outside any plan
	UserID primitive.ObjectID  `bson:"userId" json:"userId"`
	Domain Domain              `bson:"domain" json:"domain"`

	DayOfWeek int       `bson:"dayOfWeek" json:"dayOfWeek"` // 0 (Mon) - 6 (Sun)
	Date      time.Time `bson:"date" json:"date"`
	Title     string    `bson:"title" json:"title"`
	SortOrder int       `bson:"sortOrder" json:"sortOrder"` // ordering within the same day

	Status      SessionStatus `bson:"status" json:"status"`
	Detail      SessionDetail `bson:"detail,omitempty" json:"detail,omitempty"`
	Completed   SessionDetail `bson:"completed,omitempty" json:"completed,omitempty"` // what actually happened, reported on completion
	CompletedAt *time.Time    `bson:"completedAt,omitempty" json:"completedAt,omitempty"`

	IsExtra   bool      `bson:"isExtra" json:"isExtra"` // logged outside any plan, completed on insert
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
