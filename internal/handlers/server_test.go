package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iierror404/messenger-backend/internal/auth"
	"github.com/iierror404/messenger-backend/internal/events"
	"github.com/iierror404/messenger-backend/internal/ingest"
	"github.com/iierror404/messenger-backend/internal/models"
	"github.com/iierror404/messenger-backend/internal/repository"
	"github.com/iierror404/messenger-backend/internal/service"
	"github.com/iierror404/messenger-backend/internal/ws"
)

const testSecret = "handler-test-secret"

type testStack struct {
	app  *fiber.App
	svc  *service.ChatService
	msgs *repository.MemoryMessageRepository
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	convs := repository.NewMemoryConversationRepository()
	msgs := repository.NewMemoryMessageRepository()
	users := repository.NewMemoryUserRepository(
		&models.User{ID: "alice", Username: "alice", Role: "user", Password: "hash"},
		&models.User{ID: "bob", Username: "bobby", Role: "user", Password: "hash"},
		&models.User{ID: "root", Username: "root", Role: "admin", Password: "hash"},
		&models.User{ID: "sue", Username: "sue", Role: "support", Password: "hash"},
	)
	log := zap.NewNop().Sugar()
	svc := service.NewChatService(convs, msgs, users, log)
	hub := ws.NewHub()
	pipeline := ingest.NewPipeline(convs, msgs, svc, hub, events.NopPublisher{}, log)
	t.Cleanup(pipeline.Close)
	wsHandler := ws.NewHandler(hub, svc, pipeline, nil, testSecret, 25*time.Second, 10*time.Second, 65536, log)

	app := NewServer(NewChatHandler(svc, log), wsHandler, testSecret, nil, log)
	return &testStack{app: app, svc: svc, msgs: msgs}
}

func (s *testStack) do(t *testing.T, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(b)
	}
	r := httptest.NewRequest(method, path, payload)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := auth.SignToken(testSecret, userID, userID, role, time.Hour)
		require.NoError(t, err)
		r.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(r)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	rec.Code = resp.StatusCode
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	rec.Body = bytes.NewBuffer(b)
	return rec
}

func TestAPI_RequiresAuth(t *testing.T) {
	s := newTestStack(t)
	rec := s.do(t, "GET", "/api/chats", "", "", nil)
	require.Equal(t, fiber.StatusUnauthorized, rec.Code)
}

func TestAPI_CreateDirectChat(t *testing.T) {
	req := require.New(t)
	s := newTestStack(t)

	// missing target
	rec := s.do(t, "POST", "/api/chats", "alice", "user", map[string]string{})
	req.Equal(fiber.StatusBadRequest, rec.Code)

	// self target
	rec = s.do(t, "POST", "/api/chats", "alice", "user", map[string]string{"userId": "alice"})
	req.Equal(fiber.StatusBadRequest, rec.Code)

	// first call creates
	rec = s.do(t, "POST", "/api/chats", "alice", "user", map[string]string{"userId": "bob"})
	req.Equal(fiber.StatusCreated, rec.Code)
	var created models.ConversationView
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &created))
	req.Len(created.Members, 2)
	req.False(created.IsGroup)

	// second call, reversed direction, finds the same one
	rec = s.do(t, "POST", "/api/chats", "bob", "user", map[string]string{"userId": "alice"})
	req.Equal(fiber.StatusOK, rec.Code)
	var found models.ConversationView
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &found))
	req.Equal(created.ID, found.ID)
}

func TestAPI_ListChats(t *testing.T) {
	req := require.New(t)
	s := newTestStack(t)

	rec := s.do(t, "GET", "/api/chats", "alice", "user", nil)
	req.Equal(fiber.StatusOK, rec.Code)
	req.JSONEq("[]", rec.Body.String())

	s.do(t, "POST", "/api/chats", "alice", "user", map[string]string{"userId": "bob"})

	rec = s.do(t, "GET", "/api/chats", "alice", "user", nil)
	req.Equal(fiber.StatusOK, rec.Code)
	var views []models.ConversationView
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &views))
	req.Len(views, 1)

	// profile projection never includes credentials
	req.NotContains(rec.Body.String(), "hash")
	req.NotContains(rec.Body.String(), "password")
}

func TestAPI_ListMessages_GateAndOrder(t *testing.T) {
	req := require.New(t)
	s := newTestStack(t)

	rec := s.do(t, "POST", "/api/chats", "alice", "user", map[string]string{"userId": "bob"})
	var conv models.ConversationView
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &conv))

	// a non-member sees NotFound and zero message data
	rec = s.do(t, "GET", "/api/chats/"+conv.ID+"/messages", "sue", "support", nil)
	req.Equal(fiber.StatusNotFound, rec.Code)
	req.NotContains(rec.Body.String(), "content")

	// garbage id also reads as not found
	rec = s.do(t, "GET", "/api/chats/garbage/messages", "alice", "user", nil)
	req.Equal(fiber.StatusNotFound, rec.Code)

	rec = s.do(t, "GET", "/api/chats/"+conv.ID+"/messages", "alice", "user", nil)
	req.Equal(fiber.StatusOK, rec.Code)
	req.JSONEq("[]", rec.Body.String())
}

func TestAPI_SearchUsers(t *testing.T) {
	req := require.New(t)
	s := newTestStack(t)

	rec := s.do(t, "GET", "/api/chats/users?search=", "alice", "user", nil)
	req.Equal(fiber.StatusOK, rec.Code)
	var users []models.PublicUser
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &users))
	req.Len(users, 3)
	for _, u := range users {
		req.NotEqual("alice", u.ID)
	}

	rec = s.do(t, "GET", "/api/chats/users?search=BOB", "alice", "user", nil)
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &users))
	req.Len(users, 1)
	req.Equal("bobby", users[0].Username)
}

func TestAPI_AdminAndSupportGates(t *testing.T) {
	req := require.New(t)
	s := newTestStack(t)

	rec := s.do(t, "GET", "/api/chats/admin/users", "alice", "user", nil)
	req.Equal(fiber.StatusForbidden, rec.Code)

	rec = s.do(t, "GET", "/api/chats/admin/users", "root", "admin", nil)
	req.Equal(fiber.StatusOK, rec.Code)
	var users []models.PublicUser
	req.NoError(json.Unmarshal(rec.Body.Bytes(), &users))
	req.Len(users, 4)
	req.NotContains(rec.Body.String(), "hash")

	rec = s.do(t, "GET", "/api/chats/support/tickets", "alice", "user", nil)
	req.Equal(fiber.StatusForbidden, rec.Code)
	for _, caller := range []struct{ id, role string }{{"sue", "support"}, {"root", "admin"}} {
		rec = s.do(t, "GET", "/api/chats/support/tickets", caller.id, caller.role, nil)
		req.Equal(fiber.StatusOK, rec.Code)
		req.Contains(rec.Body.String(), "tickets")
	}
}

func TestHealthz_Unauthenticated(t *testing.T) {
	s := newTestStack(t)
	rec := s.do(t, "GET", "/healthz", "", "", nil)
	require.Equal(t, fiber.StatusOK, rec.Code)
}
