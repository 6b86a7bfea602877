package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/iierror404/messenger-backend/internal/models"
)

// In-memory implementations of the repositories, for tests and for running
// the service without a MongoDB. They uphold the same contracts as the Mongo
// ones, including the atomic find-or-create for direct conversations.

type MemoryConversationRepository struct {
	mu     sync.Mutex
	byID   map[primitive.ObjectID]*models.Conversation
	direct map[string]primitive.ObjectID // DirectKey -> id
}

func NewMemoryConversationRepository() *MemoryConversationRepository {
	return &MemoryConversationRepository{
		byID:   make(map[primitive.ObjectID]*models.Conversation),
		direct: make(map[string]primitive.ObjectID),
	}
}

func (r *MemoryConversationRepository) FindOrCreateDirect(_ context.Context, userID, otherID string) (*models.Conversation, bool, error) {
	key := DirectKey(userID, otherID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.direct[key]; ok {
		return cloneConversation(r.byID[id]), false, nil
	}
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        primitive.NewObjectID(),
		Members:   []string{userID, otherID},
		IsGroup:   false,
		DirectKey: key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.byID[conv.ID] = conv
	r.direct[key] = conv.ID
	return cloneConversation(conv), true, nil
}

func (r *MemoryConversationRepository) InsertGroup(_ context.Context, name string, members []string) (*models.Conversation, error) {
	now := time.Now().UTC()
	conv := &models.Conversation{
		ID:        primitive.NewObjectID(),
		Members:   append([]string(nil), members...),
		IsGroup:   true,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[conv.ID] = conv
	return cloneConversation(conv), nil
}

func (r *MemoryConversationRepository) GetByID(_ context.Context, id primitive.ObjectID) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (r *MemoryConversationRepository) ListForUser(_ context.Context, userID string) ([]*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Conversation{}
	for _, conv := range r.byID {
		for _, m := range conv.Members {
			if m == userID {
				out = append(out, cloneConversation(conv))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (r *MemoryConversationRepository) SetLatestMessage(_ context.Context, chatID, messageID primitive.ObjectID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[chatID]
	if !ok {
		return ErrNotFound
	}
	conv.LatestMessageID = messageID
	conv.UpdatedAt = at
	return nil
}

// Count reports the number of stored conversations.
func (r *MemoryConversationRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type MemoryMessageRepository struct {
	mu     sync.Mutex
	byID   map[primitive.ObjectID]*models.Message
	byChat map[primitive.ObjectID][]primitive.ObjectID

	// FailInsert makes the next Insert fail, for pipeline failure paths.
	FailInsert error
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		byID:   make(map[primitive.ObjectID]*models.Message),
		byChat: make(map[primitive.ObjectID][]primitive.ObjectID),
	}
}

func (r *MemoryMessageRepository) Insert(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailInsert != nil {
		return r.FailInsert
	}
	now := time.Now().UTC()
	m.ID = primitive.NewObjectID()
	m.CreatedAt = now
	m.UpdatedAt = now
	if m.ReadBy == nil {
		m.ReadBy = []string{}
	}
	stored := cloneMessage(m)
	r.byID[m.ID] = stored
	r.byChat[m.ChatID] = append(r.byChat[m.ChatID], m.ID)
	return nil
}

func (r *MemoryMessageRepository) GetByID(_ context.Context, id primitive.ObjectID) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneMessage(m), nil
}

func (r *MemoryMessageRepository) ListByChat(_ context.Context, chatID primitive.ObjectID) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.Message{}
	for _, id := range r.byChat[chatID] {
		out = append(out, cloneMessage(r.byID[id]))
	}
	return out, nil
}

func (r *MemoryMessageRepository) MarkRead(_ context.Context, messageID primitive.ObjectID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[messageID]
	if !ok {
		return ErrNotFound
	}
	for _, u := range m.ReadBy {
		if u == userID {
			return nil
		}
	}
	m.ReadBy = append(m.ReadBy, userID)
	m.UpdatedAt = time.Now().UTC()
	return nil
}

// Count reports the number of stored messages.
func (r *MemoryMessageRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func NewMemoryUserRepository(users ...*models.User) *MemoryUserRepository {
	r := &MemoryUserRepository{users: make(map[string]*models.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *MemoryUserRepository) Add(u *models.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = u
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *MemoryUserRepository) GetByIDs(_ context.Context, ids []string) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.User{}
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			clone := *u
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *MemoryUserRepository) Search(_ context.Context, query, excludeID string) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q := strings.ToLower(query)
	out := []*models.User{}
	for _, u := range r.users {
		if u.ID == excludeID {
			continue
		}
		if q == "" || strings.Contains(strings.ToLower(u.Username), q) {
			clone := *u
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryUserRepository) ListAll(_ context.Context) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*models.User{}
	for _, u := range r.users {
		clone := *u
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	clone := *c
	clone.Members = append([]string(nil), c.Members...)
	return &clone
}

func cloneMessage(m *models.Message) *models.Message {
	clone := *m
	clone.ReadBy = append([]string(nil), m.ReadBy...)
	return &clone
}
