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

const sessionCollectionName = "sessions"

// mongoSessionRepository implements repository.SessionRepository.
type mongoSessionRepository struct {
	collection *mongo.Collection
}

// NewMongoSessionRepository creates a new session repository.
func NewMongoSessionRepository(db *mongo.Database) repository.SessionRepository {
	return &mongoSessionRepository{
		collection: db.Collection(sessionCollectionName),
	}
}

// Create inserts a single session.
func (r *mongoSessionRepository) Create(ctx context.Context, session *domain.Session) (primitive.ObjectID, error) {
	if session.UserID == primitive.NilObjectID || !session.Domain.Valid() {
		return primitive.NilObjectID, errors.New("session requires userId and a valid domain")
	}
	session.ID = primitive.NewObjectID()
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, session)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted session ID")
	}
	return insertedID, nil
}

// CreateMany inserts a batch of sessions in one call.
func (r *mongoSessionRepository) CreateMany(ctx context.Context, sessions []domain.Session) ([]primitive.ObjectID, error) {
	if len(sessions) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	docs := make([]interface{}, 0, len(sessions))
	ids := make([]primitive.ObjectID, 0, len(sessions))
	for i := range sessions {
		sessions[i].ID = primitive.NewObjectID()
		sessions[i].CreatedAt = now
		sessions[i].UpdatedAt = now
		docs = append(docs, sessions[i])
		ids = append(ids, sessions[i].ID)
	}

	_, err := r.collection.InsertMany(ctx, docs)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// GetByID retrieves a single session.
func (r *mongoSessionRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Session, error) {
	var session domain.Session
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&session)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

// GetByPlanID retrieves all sessions attached to a plan, ordered by day and
// same-day sort order.
func (r *mongoSessionRepository) GetByPlanID(ctx context.Context, planID primitive.ObjectID) ([]domain.Session, error) {
	var sessions []domain.Session
	findOptions := options.Find().SetSort(bson.D{{Key: "dayOfWeek", Value: 1}, {Key: "sortOrder", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{"planId": planID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetExtras retrieves plan-less sessions for a user dated in [from, to).
func (r *mongoSessionRepository) GetExtras(ctx context.Context, userID primitive.ObjectID, from, to time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	filter := bson.M{
		"userId":  userID,
		"isExtra": true,
		"date":    bson.M{"$gte": from.UTC(), "$lt": to.UTC()},
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "date", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Update replaces the mutable fields of a session row in one atomic write.
func (r *mongoSessionRepository) Update(ctx context.Context, session *domain.Session) error {
	if session.ID == primitive.NilObjectID {
		return errors.New("session ID is required for update")
	}

	update := bson.M{
		"$set": bson.M{
			"dayOfWeek":   session.DayOfWeek,
			"date":        session.Date,
			"title":       session.Title,
			"status":      session.Status,
			"detail":      session.Detail,
			"completed":   session.Completed,
			"completedAt": session.CompletedAt,
			"sortOrder":   session.SortOrder,
			"updatedAt":   time.Now().UTC(),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": session.ID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Reassign moves sessions onto another plan without touching their status,
// detail or dates.
func (r *mongoSessionRepository) Reassign(ctx context.Context, ids []primitive.ObjectID, planID primitive.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	filter := bson.M{"_id": bson.M{"$in": ids}}
	update := bson.M{"$set": bson.M{"planId": planID, "updatedAt": time.Now().UTC()}}
	_, err := r.collection.UpdateMany(ctx, filter, update)
	return err
}

// DeleteByPlanID removes all sessions of a plan. Used only to compensate a
// failed generation.
func (r *mongoSessionRepository) DeleteByPlanID(ctx context.Context, planID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"planId": planID})
	return err
}

// EnsureSessionIndexes creates necessary indexes. Call during startup.
func EnsureSessionIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "planId", Value: 1}, {Key: "dayOfWeek", Value: 1}, {Key: "sortOrder", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "isExtra", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index(),
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}
