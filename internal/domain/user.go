package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User represents a coached user. The same row backs both channels: the web
// chat (identified by email + password) and the messaging bot (identified by
// the chat id).
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name         string             `bson:"name" json:"name"`
	Email        string             `bson:"email,omitempty" json:"email,omitempty"` // unique when set; bot-first users may have none
	PasswordHash string             `bson:"passwordHash,omitempty" json:"-"`        // never expose via JSON

	TelegramChatID *int64 `bson:"telegramChatId,omitempty" json:"telegramChatId,omitempty"`

	// --- Profile snapshot used by the planner ---
	AgeYears    int     `bson:"ageYears,omitempty" json:"ageYears,omitempty"`
	WeightKg    float64 `bson:"weightKg,omitempty" json:"weightKg,omitempty"`
	HeightCm    float64 `bson:"heightCm,omitempty" json:"heightCm,omitempty"`
	SleepTarget float64 `bson:"sleepTarget,omitempty" json:"sleepTarget,omitempty"` // target hours per night

	// Baselines holds the per-domain answers collected during onboarding,
	// keyed by dotted domain.field paths.
	Baselines map[string]any `bson:"baselines,omitempty" json:"baselines,omitempty"`

	Onboarded bool `bson:"onboarded" json:"onboarded"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
