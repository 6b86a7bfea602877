package handlers

import (
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/iierror404/messenger-backend/internal/metrics"
	"github.com/iierror404/messenger-backend/internal/middleware"
	"github.com/iierror404/messenger-backend/internal/ws"
)

// NewServer wires the HTTP surface: the chat API under JWT auth, role-gated
// admin/support routes, the websocket upgrade, health and metrics.
func NewServer(chat *ChatHandler, wsHandler *ws.Handler, jwtSecret string, limiter *middleware.RateLimiter, log *zap.SugaredLogger) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(fiberlogger.New())

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api", middleware.JWTAuth(jwtSecret))
	if limiter != nil {
		api.Use(limiter.MiddlewareByKey(func(c *fiber.Ctx) string {
			claims := middleware.CallerClaims(c)
			if claims != nil {
				return claims.UserID
			}
			return c.IP()
		}))
	}

	chats := api.Group("/chats")
	chats.Get("/", chat.ListChats)
	chats.Post("/", chat.CreateDirectChat)
	chats.Get("/users", chat.SearchUsers)
	chats.Get("/admin/users", middleware.RequireRole("admin"), chat.ListAllUsers)
	chats.Get("/support/tickets", middleware.RequireRole("support", "admin"), chat.SupportTickets)
	chats.Get("/:chatID/messages", chat.ListMessages)

	app.Get("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(wsHandler.Handle))

	return app
}
