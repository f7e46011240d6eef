package repository

import (
	"context"
	"time"

	"peakform/coach-app/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Error constants for the repository layer.
var (
	ErrNotFound     = RepositoryError("not found")
	ErrUpdateFailed = RepositoryError("update failed")
	ErrDeleteFailed = RepositoryError("delete failed")
)

// RepositoryError helps distinguish repository errors.
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// UserRepository defines the interface for interacting with user data.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) (primitive.ObjectID, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetByChatID(ctx context.Context, chatID int64) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

// WeeklyPlanRepository defines the interface for interacting with weekly plans.
type WeeklyPlanRepository interface {
	Create(ctx context.Context, plan *domain.WeeklyPlan) (primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WeeklyPlan, error)
	// GetActive returns the single active plan for (user, weekStart), or
	// ErrNotFound when none exists.
	GetActive(ctx context.Context, userID primitive.ObjectID, weekStart time.Time) (*domain.WeeklyPlan, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, status domain.PlanStatus) error
	// SetArchiveKey records the object-storage key of a plan's snapshot.
	SetArchiveKey(ctx context.Context, id primitive.ObjectID, key string) error
	// ListSuperseded returns the user's superseded plans, newest week first.
	ListSuperseded(ctx context.Context, userID primitive.ObjectID) ([]domain.WeeklyPlan, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
}

// SessionRepository defines the interface for interacting with sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) (primitive.ObjectID, error)
	CreateMany(ctx context.Context, sessions []domain.Session) ([]primitive.ObjectID, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Session, error)
	GetByPlanID(ctx context.Context, planID primitive.ObjectID) ([]domain.Session, error)
	// GetExtras returns plan-less sessions for the user dated in [from, to).
	GetExtras(ctx context.Context, userID primitive.ObjectID, from, to time.Time) ([]domain.Session, error)
	Update(ctx context.Context, session *domain.Session) error
	// Reassign moves the given sessions onto another plan, touching nothing
	// else on the rows. Used to carry completed work across a replan.
	Reassign(ctx context.Context, ids []primitive.ObjectID, planID primitive.ObjectID) error
	DeleteByPlanID(ctx context.Context, planID primitive.ObjectID) error
}

// OnboardingRepository persists the onboarding conversation state, keyed by
// chat id. Every transition is written through here; handlers reload state
// from storage on every incoming event.
type OnboardingRepository interface {
	Get(ctx context.Context, chatID int64) (*domain.OnboardingState, error)
	Upsert(ctx context.Context, state *domain.OnboardingState) error
	Delete(ctx context.Context, chatID int64) error
}

// ContextItemRepository defines the interface for user context facts.
type ContextItemRepository interface {
	Create(ctx context.Context, item *domain.UserContextItem) (primitive.ObjectID, error)
	GetByUserID(ctx context.Context, userID primitive.ObjectID) ([]domain.UserContextItem, error)
	Delete(ctx context.Context, id, userID primitive.ObjectID) error
}
