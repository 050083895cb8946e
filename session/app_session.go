package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"Gin_postgres_redis_lending/kv"
)

// ErrNoSession 会话不存在或已过期
var ErrNoSession = errors.New("session not found")

// KV is the slice of kv.Client the session stores need.
type KV interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	SAdd(ctx context.Context, key string, members ...any) error
	SRem(ctx context.Context, key string, members ...any) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

type AppSessionStore struct {
	kv  KV
	ttl time.Duration
}

func NewAppSessionStore(store KV, ttl time.Duration) *AppSessionStore {
	return &AppSessionStore{kv: store, ttl: ttl}
}

func (s *AppSessionStore) TTL() time.Duration { return s.ttl }

type AppSession struct {
	UserID    string `json:"uid"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}

func key(id string) string         { return kv.Key("app", "sess", id) }
func userSetKey(uid string) string { return kv.Key("app", "user_sessions", uid) }

func (s *AppSessionStore) Create(ctx context.Context, id, userID string) error {
	now := time.Now()
	b, err := json.Marshal(AppSession{
		UserID:    userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, key(id), b, s.ttl); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	// 用户 -> 会话索引，撤销时使用
	if err := s.kv.SAdd(ctx, userSetKey(userID), id); err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return s.kv.Expire(ctx, userSetKey(userID), s.ttl)
}

func (s *AppSessionStore) Get(ctx context.Context, id string) (*AppSession, error) {
	raw, err := s.kv.Get(ctx, key(id))
	if errors.Is(err, kv.ErrNil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var as AppSession
	if err := json.Unmarshal([]byte(raw), &as); err != nil {
		return nil, err
	}
	return &as, nil
}

func (s *AppSessionStore) Delete(ctx context.Context, id string) error {
	as, _ := s.Get(ctx, id) // 忽略失败
	if err := s.kv.Del(ctx, key(id)); err != nil {
		return err
	}
	if as != nil {
		return s.kv.SRem(ctx, userSetKey(as.UserID), id)
	}
	return nil
}

// RevokeAllForUser 撤销该用户的所有会话
func (s *AppSessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	ids, err := s.kv.SMembers(ctx, userSetKey(userID))
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, sid := range ids {
		keys = append(keys, key(sid))
	}
	keys = append(keys, userSetKey(userID))
	return s.kv.Del(ctx, keys...)
}
