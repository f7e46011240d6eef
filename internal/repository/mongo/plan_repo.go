package mongo

import (
	"context"
	"errors"
	"time"

	"peakform/coach-app/internal/domain"
	"peakform/coach-app/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const planCollectionName = "weekly_plans"

// mongoWeeklyPlanRepository implements repository.WeeklyPlanRepository.
type mongoWeeklyPlanRepository struct {
	collection *mongo.Collection
}

// NewMongoWeeklyPlanRepository creates a new weekly plan repository.
func NewMongoWeeklyPlanRepository(db *mongo.Database) repository.WeeklyPlanRepository {
	return &mongoWeeklyPlanRepository{
		collection: db.Collection(planCollectionName),
	}
}

// Create inserts a new weekly plan.
func (r *mongoWeeklyPlanRepository) Create(ctx context.Context, plan *domain.WeeklyPlan) (primitive.ObjectID, error) {
	if plan.UserID == primitive.NilObjectID || plan.WeekStart.IsZero() {
		return primitive.NilObjectID, errors.New("plan requires userId and weekStart")
	}
	plan.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	plan.CreatedAt = now
	plan.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, plan)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted plan ID")
	}
	return insertedID, nil
}

// GetByID retrieves a single weekly plan.
func (r *mongoWeeklyPlanRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.WeeklyPlan, error) {
	var plan domain.WeeklyPlan
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// GetActive retrieves the single active plan for (user, weekStart).
func (r *mongoWeeklyPlanRepository) GetActive(ctx context.Context, userID primitive.ObjectID, weekStart time.Time) (*domain.WeeklyPlan, error) {
	var plan domain.WeeklyPlan
	filter := bson.M{
		"userId":    userID,
		"weekStart": weekStart.UTC(),
		"status":    domain.PlanActive,
	}
	err := r.collection.FindOne(ctx, filter).Decode(&plan)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &plan, nil
}

// UpdateStatus transitions a plan's lifecycle status. The write is atomic with
// respect to the single row.
func (r *mongoWeeklyPlanRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, status domain.PlanStatus) error {
	update := bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// SetArchiveKey records the snapshot object key on a superseded plan.
func (r *mongoWeeklyPlanRepository) SetArchiveKey(ctx context.Context, id primitive.ObjectID, key string) error {
	update := bson.M{"$set": bson.M{"archiveKey": key, "updatedAt": time.Now().UTC()}}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListSuperseded returns the user's superseded plans, newest week first.
func (r *mongoWeeklyPlanRepository) ListSuperseded(ctx context.Context, userID primitive.ObjectID) ([]domain.WeeklyPlan, error) {
	filter := bson.M{"userId": userID, "status": domain.PlanSuperseded}
	opts := options.Find().SetSort(bson.D{{Key: "weekStart", Value: -1}, {Key: "updatedAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var plans []domain.WeeklyPlan
	if err := cursor.All(ctx, &plans); err != nil {
		return nil, err
	}
	return plans, nil
}

// Delete removes a plan row. Used only to compensate a failed generation.
func (r *mongoWeeklyPlanRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureWeeklyPlanIndexes creates necessary indexes. Call during startup.
func EnsureWeeklyPlanIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			// The main query pattern: active plan for (user, week).
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "weekStart", Value: 1}, {Key: "status", Value: 1}},
		},
		{
			// At most one active plan per (user, week).
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "weekStart", Value: 1}},
			Options: options.Index().SetUnique(true).
				SetPartialFilterExpression(bson.M{"status": domain.PlanActive}),
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}
