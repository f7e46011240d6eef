package mongo

import (
	"context"
	"errors"
	"time"

	"peakform/coach-app/internal/domain"
	"peakform/coach-app/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const onboardingCollectionName = "onboarding_states"

// mongoOnboardingRepository implements repository.OnboardingRepository.
// The chat id is the document _id, so there is exactly one state per chat and
// upserts are atomic per row.
type mongoOnboardingRepository struct {
	collection *mongo.Collection
}

// NewMongoOnboardingRepository creates a new onboarding state repository.
func NewMongoOnboardingRepository(db *mongo.Database) repository.OnboardingRepository {
	return &mongoOnboardingRepository{
		collection: db.Collection(onboardingCollectionName),
	}
}

// Get retrieves the onboarding state for a chat, or ErrNotFound.
func (r *mongoOnboardingRepository) Get(ctx context.Context, chatID int64) (*domain.OnboardingState, error) {
	var state domain.OnboardingState
	err := r.collection.FindOne(ctx, bson.M{"_id": chatID}).Decode(&state)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &state, nil
}

// Upsert writes the full state document for the chat.
func (r *mongoOnboardingRepository) Upsert(ctx context.Context, state *domain.OnboardingState) error {
	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": state.ChatID}, state, opts)
	return err
}

// Delete removes the onboarding state for a chat. Deleting an absent state is
// not an error; the terminal build step may race a duplicate delivery.
func (r *mongoOnboardingRepository) Delete(ctx context.Context, chatID int64) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": chatID})
	return err
}
