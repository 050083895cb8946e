package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"Gin_postgres_redis_lending/kv"

	"github.com/go-webauthn/webauthn/webauthn"
)

// CeremonyStore 保存 WebAuthn 注册/登录仪式的中间状态，TTL 内有效
type CeremonyStore struct {
	kv  KV
	ttl time.Duration
}

func NewCeremonyStore(store KV, ttl time.Duration) *CeremonyStore {
	return &CeremonyStore{kv: store, ttl: ttl}
}

func regKey(username string) string { return kv.Key("webauthn", "reg", username) }
func authKey(sid string) string     { return kv.Key("webauthn", "auth", sid) }

func (s *CeremonyStore) SaveReg(ctx context.Context, username string, sd *webauthn.SessionData) error {
	return s.save(ctx, regKey(username), sd)
}

func (s *CeremonyStore) LoadReg(ctx context.Context, username string) (*webauthn.SessionData, error) {
	return s.load(ctx, regKey(username))
}

func (s *CeremonyStore) DelReg(ctx context.Context, username string) {
	_ = s.kv.Del(ctx, regKey(username))
}

func (s *CeremonyStore) SaveAuth(ctx context.Context, sid string, sd *webauthn.SessionData) error {
	return s.save(ctx, authKey(sid), sd)
}

func (s *CeremonyStore) LoadAuth(ctx context.Context, sid string) (*webauthn.SessionData, error) {
	return s.load(ctx, authKey(sid))
}

func (s *CeremonyStore) DelAuth(ctx context.Context, sid string) { _ = s.kv.Del(ctx, authKey(sid)) }

func (s *CeremonyStore) save(ctx context.Context, k string, sd *webauthn.SessionData) error {
	b, err := json.Marshal(sd)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, k, b, s.ttl)
}

func (s *CeremonyStore) load(ctx context.Context, k string) (*webauthn.SessionData, error) {
	raw, err := s.kv.Get(ctx, k)
	if errors.Is(err, kv.ErrNil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var sd webauthn.SessionData
	if err := json.Unmarshal([]byte(raw), &sd); err != nil {
		return nil, err
	}
	return &sd, nil
}
