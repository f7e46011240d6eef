package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OnboardingState is the persisted position of a chat inside the fixed
// onboarding step sequence. It is keyed by the conversation channel (chat id),
// written after every input, and deleted once the terminal build step
// completes. The absence of a state row is the signal that a user is not
// mid-onboarding.
type OnboardingState struct {
	ChatID int64               `bson:"_id" json:"chatId"`
	UserID *primitive.ObjectID `bson:"userId,omitempty" json:"userId,omitempty"` // nullable until resolved

	StepIndex     int `bson:"stepIndex" json:"stepIndex"`
	QuestionIndex int `bson:"questionIndex" json:"questionIndex"` // sub-question / field index within the step

	// Answers accumulates responses keyed by dotted domain.field paths
	// (e.g. "cardio.level", "basics.age"). The key set is fully determined
	// by the step sequence.
	Answers map[string]any `bson:"answers,omitempty" json:"answers,omitempty"`

	// LastPromptID points at the last rendered prompt message so multi-select
	// toggles can edit it in place.
	LastPromptID *int `bson:"lastPromptId,omitempty" json:"lastPromptId,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
