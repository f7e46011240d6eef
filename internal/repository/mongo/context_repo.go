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

const contextItemCollectionName = "context_items"

// mongoContextItemRepository implements repository.ContextItemRepository.
type mongoContextItemRepository struct {
	collection *mongo.Collection
}

// NewMongoContextItemRepository creates a new context item repository.
func NewMongoContextItemRepository(db *mongo.Database) repository.ContextItemRepository {
	return &mongoContextItemRepository{
		collection: db.Collection(contextItemCollectionName),
	}
}

// Create inserts a new context item.
func (r *mongoContextItemRepository) Create(ctx context.Context, item *domain.UserContextItem) (primitive.ObjectID, error) {
	if item.UserID == primitive.NilObjectID || item.Text == "" {
		return primitive.NilObjectID, errors.New("context item requires userId and text")
	}
	item.ID = primitive.NewObjectID()
	item.CreatedAt = time.Now().UTC()

	result, err := r.collection.InsertOne(ctx, item)
	if err != nil {
		return primitive.NilObjectID, err
	}
	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("failed to convert inserted context item ID")
	}
	return insertedID, nil
}

// GetByUserID retrieves all context items for a user, newest first. Expired
// temporary items are included; filtering for planning reads happens at the
// service layer, because expiry is a read-time decision, not a storage one.
func (r *mongoContextItemRepository) GetByUserID(ctx context.Context, userID primitive.ObjectID) ([]domain.UserContextItem, error) {
	var items []domain.UserContextItem
	findOptions := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if err = cursor.All(ctx, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Delete removes one item; the filter enforces ownership.
func (r *mongoContextItemRepository) Delete(ctx context.Context, id, userID primitive.ObjectID) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureContextItemIndexes creates necessary indexes. Call during startup.
func EnsureContextItemIndexes(ctx context.Context, collection *mongo.Collection) {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
		},
	}
	_, _ = collection.Indexes().CreateMany(ctx, indexes)
}
