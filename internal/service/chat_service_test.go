package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/iierror404/messenger-backend/internal/apperr"
	"github.com/iierror404/messenger-backend/internal/models"
	"github.com/iierror404/messenger-backend/internal/repository"
)

func newFixture() (*ChatService, *repository.MemoryConversationRepository, *repository.MemoryMessageRepository, *repository.MemoryUserRepository) {
	convs := repository.NewMemoryConversationRepository()
	msgs := repository.NewMemoryMessageRepository()
	users := repository.NewMemoryUserRepository(
		&models.User{ID: "alice", Username: "alice", Role: "user", Password: "hash-a"},
		&models.User{ID: "bob", Username: "bobby", Role: "user", Password: "hash-b"},
		&models.User{ID: "carol", Username: "carol", Role: "admin", Password: "hash-c"},
	)
	svc := NewChatService(convs, msgs, users, zap.NewNop().Sugar())
	return svc, convs, msgs, users
}

func TestFindOrCreateDirect_Validation(t *testing.T) {
	req := require.New(t)
	svc, _, _, _ := newFixture()
	ctx := context.Background()

	_, _, err := svc.FindOrCreateDirect(ctx, "alice", "")
	req.ErrorIs(err, apperr.ErrBadRequest)

	_, _, err = svc.FindOrCreateDirect(ctx, "alice", "alice")
	req.ErrorIs(err, apperr.ErrBadRequest)

	_, _, err = svc.FindOrCreateDirect(ctx, "alice", "nobody")
	req.ErrorIs(err, apperr.ErrNotFound)
}

func TestFindOrCreateDirect_ReturnsResolvedProfiles(t *testing.T) {
	req := require.New(t)
	svc, _, _, _ := newFixture()
	ctx := context.Background()

	view, created, err := svc.FindOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)
	req.True(created)
	req.False(view.IsGroup)
	req.Len(view.Members, 2)
	req.Nil(view.LatestMessage)

	usernames := []string{view.Members[0].Username, view.Members[1].Username}
	req.ElementsMatch([]string{"alice", "bobby"}, usernames)

	again, created, err := svc.FindOrCreateDirect(ctx, "bob", "alice")
	req.NoError(err)
	req.False(created)
	req.Equal(view.ID, again.ID)
}

func TestListForUser_MembershipContainment(t *testing.T) {
	req := require.New(t)
	svc, _, _, _ := newFixture()
	ctx := context.Background()

	_, _, err := svc.FindOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)
	_, _, err = svc.FindOrCreateDirect(ctx, "bob", "carol")
	req.NoError(err)

	for _, userID := range []string{"alice", "bob", "carol"} {
		views, err := svc.ListForUser(ctx, userID)
		req.NoError(err)
		for _, v := range views {
			found := false
			for _, m := range v.Members {
				if m.ID == userID {
					found = true
				}
			}
			req.True(found, "conversation %s listed for non-member %s", v.ID, userID)
		}
	}

	views, err := svc.ListForUser(ctx, "alice")
	req.NoError(err)
	req.Len(views, 1)

	// no conversations means an empty list, not an error
	views, err = svc.ListForUser(ctx, "nobody")
	req.NoError(err)
	req.Empty(views)
}

func TestListForUser_SortedByActivityWithLatestMessage(t *testing.T) {
	req := require.New(t)
	svc, convs, msgs, _ := newFixture()
	ctx := context.Background()

	ab, _, err := svc.FindOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)
	ac, _, err := svc.FindOrCreateDirect(ctx, "alice", "carol")
	req.NoError(err)

	abID, err := primitive.ObjectIDFromHex(ab.ID)
	req.NoError(err)

	time.Sleep(5 * time.Millisecond) // activity in ab must be strictly newer
	m := &models.Message{ChatID: abID, SenderID: "bob", Content: "hello"}
	req.NoError(msgs.Insert(ctx, m))
	req.NoError(convs.SetLatestMessage(ctx, abID, m.ID, m.CreatedAt))

	views, err := svc.ListForUser(ctx, "alice")
	req.NoError(err)
	req.Len(views, 2)
	// the chat with the newer message comes first
	req.Equal(ab.ID, views[0].ID)
	req.Equal(ac.ID, views[1].ID)

	req.NotNil(views[0].LatestMessage)
	req.Equal("hello", views[0].LatestMessage.Content)
	req.Equal("bobby", views[0].LatestMessage.Sender.Username)
	req.Nil(views[1].LatestMessage)
}

func TestAuthorize_NotFoundForAbsentAndForNonMember(t *testing.T) {
	req := require.New(t)
	svc, _, _, _ := newFixture()
	ctx := context.Background()

	// absent chat
	_, err := svc.Authorize(ctx, primitive.NewObjectID(), "alice")
	req.ErrorIs(err, apperr.ErrNotFound)

	view, _, err := svc.FindOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)
	chatID, err := primitive.ObjectIDFromHex(view.ID)
	req.NoError(err)

	// non-member gets the same answer as absent
	_, errAbsent := svc.Authorize(ctx, primitive.NewObjectID(), "carol")
	_, errDenied := svc.Authorize(ctx, chatID, "carol")
	req.ErrorIs(errDenied, apperr.ErrNotFound)
	req.Equal(errAbsent.Error(), errDenied.Error())

	conv, err := svc.Authorize(ctx, chatID, "alice")
	req.NoError(err)
	req.Contains(conv.Members, "alice")
}

func TestListMessages_DeniedForNonMember(t *testing.T) {
	req := require.New(t)
	svc, _, msgs, _ := newFixture()
	ctx := context.Background()

	view, _, err := svc.FindOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)
	chatID, err := primitive.ObjectIDFromHex(view.ID)
	req.NoError(err)
	req.NoError(msgs.Insert(ctx, &models.Message{ChatID: chatID, SenderID: "alice", Content: "secret"}))

	out, err := svc.ListMessages(ctx, chatID, "carol")
	req.ErrorIs(err, apperr.ErrNotFound)
	req.Nil(out)
}

func TestListMessages_AscendingWithResolvedSenders(t *testing.T) {
	req := require.New(t)
	svc, _, msgs, _ := newFixture()
	ctx := context.Background()

	view, _, err := svc.FindOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)
	chatID, err := primitive.ObjectIDFromHex(view.ID)
	req.NoError(err)

	req.NoError(msgs.Insert(ctx, &models.Message{ChatID: chatID, SenderID: "alice", Content: "first"}))
	req.NoError(msgs.Insert(ctx, &models.Message{ChatID: chatID, SenderID: "bob", Content: "second"}))

	out, err := svc.ListMessages(ctx, chatID, "bob")
	req.NoError(err)
	req.Len(out, 2)
	req.Equal("first", out[0].Content)
	req.Equal("second", out[1].Content)
	req.Equal("alice", out[0].Sender.Username)
	req.Equal("bobby", out[1].Sender.Username)
}

func TestSearchUsers_AlwaysExcludesCaller(t *testing.T) {
	req := require.New(t)
	svc, _, _, _ := newFixture()
	ctx := context.Background()

	for _, query := range []string{"", "a", "alice", "BOB"} {
		out, err := svc.SearchUsers(ctx, query, "alice")
		req.NoError(err)
		for _, u := range out {
			req.NotEqual("alice", u.ID, "query %q leaked the caller", query)
		}
	}

	out, err := svc.SearchUsers(ctx, "bob", "alice")
	req.NoError(err)
	req.Len(out, 1)
	req.Equal("bobby", out[0].Username)
}

func TestMarkRead_GatedOnMembership(t *testing.T) {
	req := require.New(t)
	svc, _, msgs, _ := newFixture()
	ctx := context.Background()

	view, _, err := svc.FindOrCreateDirect(ctx, "alice", "bob")
	req.NoError(err)
	chatID, err := primitive.ObjectIDFromHex(view.ID)
	req.NoError(err)
	m := &models.Message{ChatID: chatID, SenderID: "alice", Content: "hi"}
	req.NoError(msgs.Insert(ctx, m))

	req.ErrorIs(svc.MarkRead(ctx, chatID, m.ID, "carol"), apperr.ErrNotFound)
	req.NoError(svc.MarkRead(ctx, chatID, m.ID, "bob"))

	got, err := msgs.GetByID(ctx, m.ID)
	req.NoError(err)
	req.Equal([]string{"bob"}, got.ReadBy)
}
