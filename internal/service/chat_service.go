package service

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/iierror404/messenger-backend/internal/apperr"
	"github.com/iierror404/messenger-backend/internal/models"
	"github.com/iierror404/messenger-backend/internal/repository"
)

// ChatService owns conversation listing, direct-conversation dedup, the
// membership gate and user search. Repositories are injected so the service
// is testable without a running store.
type ChatService struct {
	convs repository.ConversationRepository
	msgs  repository.MessageRepository
	users repository.UserRepository
	log   *zap.SugaredLogger
}

func NewChatService(convs repository.ConversationRepository, msgs repository.MessageRepository, users repository.UserRepository, log *zap.SugaredLogger) *ChatService {
	return &ChatService{convs: convs, msgs: msgs, users: users, log: log}
}

// ListForUser returns the caller's conversations newest-activity first, with
// members and the latest message resolved. A user with no conversations gets
// an empty slice, not an error.
func (s *ChatService) ListForUser(ctx context.Context, userID string) ([]*models.ConversationView, error) {
	convs, err := s.convs.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list conversations: %v", apperr.ErrInternal, err)
	}
	out := make([]*models.ConversationView, 0, len(convs))
	for _, c := range convs {
		view, err := s.ResolveConversation(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// FindOrCreateDirect returns the one direct conversation between the caller
// and otherID, creating it when absent. Concurrent calls for the same pair
// converge on a single conversation; the repository guarantees that.
func (s *ChatService) FindOrCreateDirect(ctx context.Context, userID, otherID string) (*models.ConversationView, bool, error) {
	if otherID == "" {
		return nil, false, fmt.Errorf("%w: target user id is required", apperr.ErrBadRequest)
	}
	if otherID == userID {
		return nil, false, fmt.Errorf("%w: cannot open a conversation with yourself", apperr.ErrBadRequest)
	}
	if _, err := s.users.GetByID(ctx, otherID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, fmt.Errorf("%w: target user", apperr.ErrNotFound)
		}
		return nil, false, fmt.Errorf("%w: load target user: %v", apperr.ErrInternal, err)
	}

	conv, created, err := s.convs.FindOrCreateDirect(ctx, userID, otherID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: find or create conversation: %v", apperr.ErrInternal, err)
	}
	if created {
		s.log.Infow("direct conversation created", "chat_id", conv.ID.Hex(), "pair", repository.DirectKey(userID, otherID))
	}
	view, err := s.ResolveConversation(ctx, conv)
	if err != nil {
		return nil, false, err
	}
	return view, created, nil
}

// Authorize is the membership gate. Absence and non-membership are both
// NotFound so a non-member cannot learn whether a conversation exists.
// Membership is read fresh on every call, never cached.
func (s *ChatService) Authorize(ctx context.Context, chatID primitive.ObjectID, userID string) (*models.Conversation, error) {
	conv, err := s.convs.GetByID(ctx, chatID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: chat not found or access denied", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: load conversation: %v", apperr.ErrInternal, err)
	}
	if !contains(conv.Members, userID) {
		return nil, fmt.Errorf("%w: chat not found or access denied", apperr.ErrNotFound)
	}
	return conv, nil
}

// ListMessages returns the chat's log oldest first, gated on membership.
func (s *ChatService) ListMessages(ctx context.Context, chatID primitive.ObjectID, userID string) ([]*models.MessageView, error) {
	if _, err := s.Authorize(ctx, chatID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.msgs.ListByChat(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", apperr.ErrInternal, err)
	}
	out := make([]*models.MessageView, 0, len(msgs))
	for _, m := range msgs {
		view, err := s.ResolveMessage(ctx, m)
		if err != nil {
			return nil, err
		}
		out = append(out, view)
	}
	return out, nil
}

// MarkRead records that userID has read the message, gated on membership.
func (s *ChatService) MarkRead(ctx context.Context, chatID, messageID primitive.ObjectID, userID string) error {
	if _, err := s.Authorize(ctx, chatID, userID); err != nil {
		return err
	}
	if err := s.msgs.MarkRead(ctx, messageID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: message", apperr.ErrNotFound)
		}
		return fmt.Errorf("%w: mark read: %v", apperr.ErrInternal, err)
	}
	return nil
}

// SearchUsers matches usernames case-insensitively, always excluding the
// caller. Empty query means everyone else.
func (s *ChatService) SearchUsers(ctx context.Context, query, callerID string) ([]models.PublicUser, error) {
	users, err := s.users.Search(ctx, query, callerID)
	if err != nil {
		return nil, fmt.Errorf("%w: search users: %v", apperr.ErrInternal, err)
	}
	return publicProfiles(users), nil
}

// ListAllUsers backs the admin listing; the role gate runs in middleware.
func (s *ChatService) ListAllUsers(ctx context.Context) ([]models.PublicUser, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %v", apperr.ErrInternal, err)
	}
	return publicProfiles(users), nil
}

// ResolveConversation joins member profiles and the latest message into the
// stored conversation. Resolution is explicit and happens here, after the
// read; the repository never dereferences foreign keys on its own.
func (s *ChatService) ResolveConversation(ctx context.Context, conv *models.Conversation) (*models.ConversationView, error) {
	members, err := s.users.GetByIDs(ctx, conv.Members)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve members: %v", apperr.ErrInternal, err)
	}
	view := &models.ConversationView{
		ID:        conv.ID.Hex(),
		Members:   publicProfiles(members),
		IsGroup:   conv.IsGroup,
		Name:      conv.Name,
		CreatedAt: conv.CreatedAt,
		UpdatedAt: conv.UpdatedAt,
	}
	if !conv.LatestMessageID.IsZero() {
		msg, err := s.msgs.GetByID(ctx, conv.LatestMessageID)
		if err != nil {
			// a dangling pointer would be a store-level bug; surface it
			return nil, fmt.Errorf("%w: resolve latest message: %v", apperr.ErrInternal, err)
		}
		mv, err := s.ResolveMessage(ctx, msg)
		if err != nil {
			return nil, err
		}
		view.LatestMessage = mv
	}
	return view, nil
}

// ResolveMessage joins the sender's public profile into a stored message.
func (s *ChatService) ResolveMessage(ctx context.Context, m *models.Message) (*models.MessageView, error) {
	sender, err := s.users.GetByID(ctx, m.SenderID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve sender: %v", apperr.ErrInternal, err)
	}
	readBy := m.ReadBy
	if readBy == nil {
		readBy = []string{}
	}
	return &models.MessageView{
		ID:        m.ID.Hex(),
		ChatID:    m.ChatID.Hex(),
		Sender:    sender.Public(),
		Content:   m.Content,
		ReadBy:    readBy,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func publicProfiles(users []*models.User) []models.PublicUser {
	out := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
