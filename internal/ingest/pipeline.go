package ingest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/iierror404/messenger-backend/internal/events"
	"github.com/iierror404/messenger-backend/internal/metrics"
	"github.com/iierror404/messenger-backend/internal/models"
	"github.com/iierror404/messenger-backend/internal/repository"
)

// Broadcaster delivers a payload to the live subscribers of a chat.
type Broadcaster interface {
	Emit(chatID string, payload []byte)
}

// Resolver joins the sender's public profile into a stored message before it
// goes out on the wire.
type Resolver interface {
	ResolveMessage(ctx context.Context, m *models.Message) (*models.MessageView, error)
}

// SendEvent is one inbound "send" from a live connection. Fire and forget:
// the sender gets no acknowledgment and no error, ever.
type SendEvent struct {
	ChatID   string `json:"chatId"`
	SenderID string `json:"senderId"`
	Content  string `json:"content"`
}

// Envelope is the outbound wire frame for broadcasts.
type Envelope struct {
	Type    string              `json:"type"`
	Payload *models.MessageView `json:"payload"`
}

const queueDepth = 64

// Pipeline ingests send events. Events for the same chat are processed
// strictly in arrival order by a single worker per chat; different chats run
// in parallel. Every failure is logged and the event dropped silently,
// matching the no-acknowledgment contract of the realtime channel.
type Pipeline struct {
	convs     repository.ConversationRepository
	msgs      repository.MessageRepository
	resolver  Resolver
	hub       Broadcaster
	publisher events.Publisher
	log       *zap.SugaredLogger
	timeout   time.Duration

	mu     sync.Mutex
	queues map[string]chan SendEvent
	wg     sync.WaitGroup
	closed bool
}

func NewPipeline(convs repository.ConversationRepository, msgs repository.MessageRepository, resolver Resolver, hub Broadcaster, publisher events.Publisher, log *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		convs:     convs,
		msgs:      msgs,
		resolver:  resolver,
		hub:       hub,
		publisher: publisher,
		log:       log,
		timeout:   10 * time.Second,
		queues:    make(map[string]chan SendEvent),
	}
}

// Submit hands an event to the chat's queue without blocking the caller.
// A missing chat id cannot be routed to a queue and is dropped here; all
// other validation happens on the worker, where blocking is allowed.
func (p *Pipeline) Submit(ev SendEvent) {
	if ev.ChatID == "" {
		p.drop("missing_chat_id", ev, nil)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.drop("shutting_down", ev, nil)
		return
	}
	q, ok := p.queues[ev.ChatID]
	if !ok {
		q = make(chan SendEvent, queueDepth)
		p.queues[ev.ChatID] = q
		p.wg.Add(1)
		go p.run(ev.ChatID, q)
	}
	select {
	case q <- ev:
	default:
		p.drop("queue_full", ev, nil)
	}
}

// Close stops accepting events and waits for in-flight queues to drain.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// run drains one chat's queue in order and exits once it is empty. The next
// Submit for the chat starts a fresh worker. Deleting the queue and checking
// emptiness happen under the same lock Submit enqueues under, so no event is
// ever stranded.
func (p *Pipeline) run(chatID string, q chan SendEvent) {
	defer p.wg.Done()
	for {
		select {
		case ev := <-q:
			p.process(ev)
		default:
			p.mu.Lock()
			if len(q) == 0 {
				delete(p.queues, chatID)
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
		}
	}
}

func (p *Pipeline) process(ev SendEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	ev.Content = strings.TrimSpace(ev.Content)
	if ev.SenderID == "" || ev.Content == "" {
		p.drop("invalid_event", ev, nil)
		return
	}
	chatID, err := primitive.ObjectIDFromHex(ev.ChatID)
	if err != nil {
		p.drop("bad_chat_id", ev, err)
		return
	}

	conv, err := p.convs.GetByID(ctx, chatID)
	if err != nil {
		p.drop("chat_lookup", ev, err)
		return
	}
	if !memberOf(conv.Members, ev.SenderID) {
		p.drop("not_a_member", ev, nil)
		return
	}

	msg := &models.Message{
		ChatID:   chatID,
		SenderID: ev.SenderID,
		Content:  ev.Content,
	}
	if err := p.msgs.Insert(ctx, msg); err != nil {
		p.drop("persist", ev, err)
		return
	}
	if err := p.convs.SetLatestMessage(ctx, chatID, msg.ID, msg.CreatedAt); err != nil {
		// the message is stored but the event is aborted: nothing may be
		// broadcast past a failed pointer update
		p.drop("pointer_update", ev, err)
		return
	}

	view, err := p.resolver.ResolveMessage(ctx, msg)
	if err != nil {
		p.drop("resolve", ev, err)
		return
	}
	payload, err := json.Marshal(Envelope{Type: "message", Payload: view})
	if err != nil {
		p.drop("encode", ev, err)
		return
	}

	metrics.MessagesIngested.Inc()
	p.hub.Emit(ev.ChatID, payload)
	metrics.BroadcastsDelivered.Inc()

	p.publisher.MessageSent(ctx, view)
}

func (p *Pipeline) drop(reason string, ev SendEvent, err error) {
	metrics.MessagesDropped.WithLabelValues(reason).Inc()
	if err != nil {
		p.log.Warnw("send event dropped", "reason", reason, "chat_id", ev.ChatID, "sender_id", ev.SenderID, "err", err)
		return
	}
	p.log.Infow("send event dropped", "reason", reason, "chat_id", ev.ChatID, "sender_id", ev.SenderID)
}

func memberOf(members []string, userID string) bool {
	for _, m := range members {
		if m == userID {
			return true
		}
	}
	return false
}
