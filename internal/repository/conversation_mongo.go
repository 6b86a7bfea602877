package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/iierror404/messenger-backend/internal/models"
)

type MongoConversationRepository struct {
	coll *mongo.Collection
}

func NewMongoConversationRepository(coll *mongo.Collection) *MongoConversationRepository {
	return &MongoConversationRepository{coll: coll}
}

// EnsureIndexes creates the members index and the unique partial index on
// direct_key that backs the pairwise dedup guarantee.
func (r *MongoConversationRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "members", Value: 1}},
			Options: options.Index().SetName("members_idx"),
		},
		{
			Keys: bson.D{{Key: "direct_key", Value: 1}},
			Options: options.Index().
				SetName("direct_key_uniq").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_group": false}),
		},
	})
	return err
}

// FindOrCreateDirect resolves the single non-group conversation for the pair,
// creating it if absent. The upsert on direct_key plus the unique index makes
// concurrent calls for the same pair converge on one document.
func (r *MongoConversationRepository) FindOrCreateDirect(ctx context.Context, userID, otherID string) (*models.Conversation, bool, error) {
	key := DirectKey(userID, otherID)
	now := time.Now().UTC()

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"direct_key": key, "is_group": false},
		bson.M{"$setOnInsert": bson.M{
			"members":    []string{userID, otherID},
			"is_group":   false,
			"direct_key": key,
			"created_at": now,
			"updated_at": now,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		// a concurrent upsert can race the unique index; the document exists now
		if !mongo.IsDuplicateKeyError(err) {
			return nil, false, err
		}
	}
	created := res != nil && res.UpsertedCount == 1

	var conv models.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"direct_key": key, "is_group": false}).Decode(&conv); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, false, ErrNotFound
		}
		return nil, false, err
	}
	return &conv, created, nil
}

func (r *MongoConversationRepository) InsertGroup(ctx context.Context, name string, members []string) (*models.Conversation, error) {
	now := time.Now().UTC()
	conv := &models.Conversation{
		Members:   members,
		IsGroup:   true,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	res, err := r.coll.InsertOne(ctx, conv)
	if err != nil {
		return nil, err
	}
	conv.ID = res.InsertedID.(primitive.ObjectID)
	return conv, nil
}

func (r *MongoConversationRepository) GetByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	var conv models.Conversation
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&conv); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (r *MongoConversationRepository) ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cur, err := r.coll.Find(ctx, bson.M{"members": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []*models.Conversation{}
	for cur.Next(ctx) {
		var c models.Conversation
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

// SetLatestMessage advances the denormalized pointer and bumps updated_at.
func (r *MongoConversationRepository) SetLatestMessage(ctx context.Context, chatID, messageID primitive.ObjectID, at time.Time) error {
	res, err := r.coll.UpdateByID(ctx, chatID, bson.M{"$set": bson.M{
		"latest_message_id": messageID,
		"updated_at":        at,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
