package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iierror404/messenger-backend/internal/models"
)

var ErrNotFound = errors.New("not found")

// ConversationRepository is the durable store for conversations. Implementations
// must make FindOrCreateDirect atomic with respect to concurrent callers for
// the same pair: exactly one non-group conversation may exist per pair.
type ConversationRepository interface {
	FindOrCreateDirect(ctx context.Context, userID, otherID string) (conv *models.Conversation, created bool, err error)
	InsertGroup(ctx context.Context, name string, members []string) (*models.Conversation, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error)
	SetLatestMessage(ctx context.Context, chatID, messageID primitive.ObjectID, at time.Time) error
}

type MessageRepository interface {
	Insert(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*models.Message, error)
	ListByChat(ctx context.Context, chatID primitive.ObjectID) ([]*models.Message, error)
	MarkRead(ctx context.Context, messageID primitive.ObjectID, userID string) error
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)
	Search(ctx context.Context, query, excludeID string) ([]*models.User, error)
	ListAll(ctx context.Context) ([]*models.User, error)
}

// DirectKey builds the dedup key for a pair of user ids. Order of the
// arguments does not matter.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// SplitDirectKey is the inverse of DirectKey.
func SplitDirectKey(key string) (string, string) {
	parts := strings.SplitN(key, "|", 2)
	if len(parts) != 2 {
		return key, ""
	}
	return parts[0], parts[1]
}
