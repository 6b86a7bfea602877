package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/iierror404/messenger-backend/internal/apperr"
	"github.com/iierror404/messenger-backend/internal/middleware"
	"github.com/iierror404/messenger-backend/internal/service"
)

type ChatHandler struct {
	svc *service.ChatService
	log *zap.SugaredLogger
}

func NewChatHandler(svc *service.ChatService, log *zap.SugaredLogger) *ChatHandler {
	return &ChatHandler{svc: svc, log: log}
}

// ListChats returns the caller's conversations, newest activity first.
func (h *ChatHandler) ListChats(c *fiber.Ctx) error {
	claims := middleware.CallerClaims(c)
	chats, err := h.svc.ListForUser(c.UserContext(), claims.UserID)
	if err != nil {
		return h.fail(c, err, "fetching chats")
	}
	return c.JSON(chats)
}

// CreateDirectChat finds or creates the direct conversation with the user
// named in the body. 201 when it was created, 200 when it already existed.
func (h *ChatHandler) CreateDirectChat(c *fiber.Ctx) error {
	claims := middleware.CallerClaims(c)
	var body struct {
		UserID string `json:"userId"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": "invalid request body"})
	}
	view, created, err := h.svc.FindOrCreateDirect(c.UserContext(), claims.UserID, body.UserID)
	if err != nil {
		return h.fail(c, err, "creating chat")
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(view)
}

// ListMessages returns the gated message log for a chat, oldest first.
func (h *ChatHandler) ListMessages(c *fiber.Ctx) error {
	claims := middleware.CallerClaims(c)
	chatID, err := primitive.ObjectIDFromHex(c.Params("chatID"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "chat not found or access denied"})
	}
	msgs, err := h.svc.ListMessages(c.UserContext(), chatID, claims.UserID)
	if err != nil {
		return h.fail(c, err, "fetching messages")
	}
	return c.JSON(msgs)
}

// SearchUsers matches usernames against ?search=, excluding the caller.
func (h *ChatHandler) SearchUsers(c *fiber.Ctx) error {
	claims := middleware.CallerClaims(c)
	users, err := h.svc.SearchUsers(c.UserContext(), c.Query("search"), claims.UserID)
	if err != nil {
		return h.fail(c, err, "searching users")
	}
	return c.JSON(users)
}

// ListAllUsers is the admin listing; the role gate runs before this handler.
func (h *ChatHandler) ListAllUsers(c *fiber.Ctx) error {
	users, err := h.svc.ListAllUsers(c.UserContext())
	if err != nil {
		return h.fail(c, err, "listing users")
	}
	return c.JSON(users)
}

// SupportTickets is a static placeholder for the support tooling.
func (h *ChatHandler) SupportTickets(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"tickets": []any{},
		"message": "Support data accessed successfully.",
	})
}

func (h *ChatHandler) fail(c *fiber.Ctx, err error, action string) error {
	status := apperr.HTTPStatus(err)
	if status == fiber.StatusInternalServerError {
		h.log.Errorw("request failed", "action", action, "path", c.Path(), "err", err)
		return c.Status(status).JSON(fiber.Map{"message": "internal error"})
	}
	return c.Status(status).JSON(fiber.Map{"message": userMessage(err)})
}

// userMessage strips the sentinel prefix added by the service layer.
func userMessage(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{apperr.ErrBadRequest, apperr.ErrNotFound, apperr.ErrUnauthorized, apperr.ErrForbidden, apperr.ErrRateLimited} {
		if errors.Is(err, sentinel) {
			return strings.TrimPrefix(msg, sentinel.Error()+": ")
		}
	}
	return msg
}
