package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/grovesolutions/sapling-live/domain/entities"
	"github.com/grovesolutions/sapling-live/domain/repositories"
)

type TranscriptRepository struct {
	collection *mongo.Collection
}

// NewTranscriptRepository creates a new MongoDB transcript repository
func NewTranscriptRepository(db *mongo.Database) repositories.TranscriptRepository {
	return &TranscriptRepository{
		collection: db.Collection("conversations"),
	}
}

// Save implements repositories.TranscriptRepository
func (r *TranscriptRepository) Save(ctx context.Context, conversation *entities.Conversation) error {
	if conversation == nil {
		return errors.New("conversation cannot be nil")
	}
	if conversation.ClientID == "" {
		return errors.New("conversation client ID cannot be empty")
	}
	if conversation.ID.IsZero() {
		conversation.ID = primitive.NewObjectID()
	}

	if _, err := r.collection.InsertOne(ctx, conversation); err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

// ListByClient implements repositories.TranscriptRepository. Conversations
// come back most recent first.
func (r *TranscriptRepository) ListByClient(ctx context.Context, clientID string, limit int64) ([]*entities.Conversation, error) {
	if clientID == "" {
		return nil, errors.New("client ID cannot be empty")
	}
	if limit <= 0 {
		limit = 20
	}

	filter := bson.M{"client_id": clientID}
	opts := options.Find().
		SetSort(bson.M{"started_at": -1}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations for client %s: %w", clientID, err)
	}
	defer cursor.Close(ctx)

	var conversations []*entities.Conversation
	if err := cursor.All(ctx, &conversations); err != nil {
		return nil, fmt.Errorf("failed to decode conversations: %w", err)
	}
	return conversations, nil
}
