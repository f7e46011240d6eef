package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ContextCategory classifies a free-text fact about the user.
type ContextCategory string

const (
	ContextPhysical    ContextCategory = "physical"
	ContextEnvironment ContextCategory = "environment"
	ContextEquipment   ContextCategory = "equipment"
	ContextSchedule    ContextCategory = "schedule"
)

// ContextScope distinguishes permanent facts from temporary ones.
type ContextScope string

const (
	ScopePermanent ContextScope = "permanent"
	ScopeTemporary ContextScope = "temporary"
)

// ContextSource records where a fact came from.
type ContextSource string

const (
	SourceOnboarding   ContextSource = "onboarding"
	SourceConversation ContextSource = "conversation"
)

// UserContextItem is a free-text fact about the user consulted when a plan is
// generated (e.g. "travels Tue-Thu", "left knee injury"). An expired temporary
// item is excluded from planning reads but kept until explicitly removed.
type UserContextItem struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID   primitive.ObjectID `bson:"userId" json:"userId"`
	Category ContextCategory    `bson:"category" json:"category"`
	Scope    ContextScope       `bson:"scope" json:"scope"`
	Source   ContextSource      `bson:"source" json:"source"`
	Text     string             `bson:"text" json:"text"`

	ExpiresAt *time.Time `bson:"expiresAt,omitempty" json:"expiresAt,omitempty"` // only meaningful for temporary scope
	CreatedAt time.Time  `bson:"createdAt" json:"createdAt"`
}

// Expired reports whether the item is a temporary fact past its expiry.
func (c UserContextItem) Expired(now time.Time) bool {
	return c.Scope == ScopeTemporary && c.ExpiresAt != nil && c.ExpiresAt.Before(now)
}
