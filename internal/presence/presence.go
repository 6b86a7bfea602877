package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps per-user presence in Redis keyed by connection, so a user with
// several sockets stays online until the last one drops.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type Status struct {
	Status   string `json:"status"`
	LastSeen int64  `json:"last_seen"`
}

func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

func (s *Store) connKey(userID string) string {
	return fmt.Sprintf("%s:conn:%s", s.prefix, userID)
}

func (s *Store) presenceKey(userID string) string {
	return fmt.Sprintf("%s:presence:%s", s.prefix, userID)
}

func (s *Store) Connected(ctx context.Context, userID, connID string) error {
	if err := s.client.SAdd(ctx, s.connKey(userID), connID).Err(); err != nil {
		return err
	}
	_ = s.client.Expire(ctx, s.connKey(userID), s.ttl).Err()
	return s.setStatus(ctx, userID, "online")
}

func (s *Store) Disconnected(ctx context.Context, userID, connID string) error {
	if err := s.client.SRem(ctx, s.connKey(userID), connID).Err(); err != nil {
		return err
	}
	remaining, err := s.client.SCard(ctx, s.connKey(userID)).Result()
	if err != nil {
		return err
	}
	if remaining == 0 {
		return s.setStatus(ctx, userID, "offline")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, userID string) (*Status, error) {
	b, err := s.client.Get(ctx, s.presenceKey(userID)).Bytes()
	if err != nil {
		return nil, err
	}
	var st Status
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) setStatus(ctx context.Context, userID, status string) error {
	b, _ := json.Marshal(Status{Status: status, LastSeen: time.Now().Unix()})
	return s.client.Set(ctx, s.presenceKey(userID), b, s.ttl).Err()
}
