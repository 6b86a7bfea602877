package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/iierror404/messenger-backend/internal/auth"
	"github.com/iierror404/messenger-backend/internal/ingest"
	"github.com/iierror404/messenger-backend/internal/models"
	"github.com/iierror404/messenger-backend/internal/presence"
)

// Gate is the membership check run before a join subscribes a connection.
type Gate interface {
	Authorize(ctx context.Context, chatID primitive.ObjectID, userID string) (*models.Conversation, error)
	MarkRead(ctx context.Context, chatID, messageID primitive.ObjectID, userID string) error
}

// Submitter accepts send events without blocking the reader.
type Submitter interface {
	Submit(ev ingest.SendEvent)
}

type inboundFrame struct {
	Type      string `json:"type"`
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	Content   string `json:"content"`
}

type Handler struct {
	hub      *Hub
	gate     Gate
	pipeline Submitter
	presence *presence.Store
	log      *zap.SugaredLogger

	jwtSecret     string
	pingInterval  time.Duration
	writeDeadline time.Duration
	maxMsgSize    int64
}

func NewHandler(hub *Hub, gate Gate, pipeline Submitter, pres *presence.Store, jwtSecret string, pingInterval, writeDeadline time.Duration, maxMsgSize int64, log *zap.SugaredLogger) *Handler {
	return &Handler{
		hub:           hub,
		gate:          gate,
		pipeline:      pipeline,
		presence:      pres,
		log:           log,
		jwtSecret:     jwtSecret,
		pingInterval:  pingInterval,
		writeDeadline: writeDeadline,
		maxMsgSize:    maxMsgSize,
	}
}

// Handle runs one websocket connection. Route: /ws?token=<jwt>. The identity
// on the token is the sender for every event on this connection; clients
// never name their own sender id.
func (h *Handler) Handle(conn *websocket.Conn) {
	token := conn.Query("token")
	claims, err := auth.ParseAndValidateToken(h.jwtSecret, token)
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"type": "error", "error": "invalid token"})
		_ = conn.Close()
		return
	}

	client := NewClient(claims.UserID)
	h.hub.Register(client)
	if h.presence != nil {
		if err := h.presence.Connected(context.Background(), client.UserID, client.ID); err != nil {
			h.log.Warnw("presence connect", "err", err, "user_id", client.UserID)
		}
	}

	done := make(chan struct{})
	go h.writePump(conn, client, done)
	h.readPump(conn, client)

	// disconnect: future deliveries stop, in-flight persistence does not
	h.hub.Drop(client)
	client.Close()
	<-done
	if h.presence != nil {
		if err := h.presence.Disconnected(context.Background(), client.UserID, client.ID); err != nil {
			h.log.Warnw("presence disconnect", "err", err, "user_id", client.UserID)
		}
	}
}

func (h *Handler) readPump(conn *websocket.Conn, client *Client) {
	conn.SetReadLimit(h.maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(2 * h.pingInterval))
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "join":
			h.handleJoin(client, frame)
		case "send":
			h.pipeline.Submit(ingest.SendEvent{
				ChatID:   frame.ChatID,
				SenderID: client.UserID,
				Content:  frame.Content,
			})
		case "read":
			h.handleRead(client, frame)
		default:
			// unknown frame types are ignored
		}
	}
}

// handleJoin gates membership before subscribing. Denial looks identical to
// a nonexistent chat.
func (h *Handler) handleJoin(client *Client, frame inboundFrame) {
	chatID, err := primitive.ObjectIDFromHex(frame.ChatID)
	if err != nil {
		h.sendError(client, "chat not found or access denied")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := h.gate.Authorize(ctx, chatID, client.UserID); err != nil {
		h.sendError(client, "chat not found or access denied")
		return
	}
	h.hub.Join(client, frame.ChatID)
}

// handleRead records a read receipt; failures are silent like sends.
func (h *Handler) handleRead(client *Client, frame inboundFrame) {
	chatID, err := primitive.ObjectIDFromHex(frame.ChatID)
	if err != nil {
		return
	}
	messageID, err := primitive.ObjectIDFromHex(frame.MessageID)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.gate.MarkRead(ctx, chatID, messageID, client.UserID); err != nil {
		h.log.Infow("read receipt dropped", "chat_id", frame.ChatID, "message_id", frame.MessageID, "err", err)
	}
}

func (h *Handler) sendError(client *Client, msg string) {
	b, _ := json.Marshal(map[string]string{"type": "error", "error": msg})
	client.Send(b)
}

func (h *Handler) writePump(conn *websocket.Conn, client *Client, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case payload, ok := <-client.Outbox():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeDeadline))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.writeDeadline))
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
