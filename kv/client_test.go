package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCmdable struct {
	setKey   string
	setTTL   time.Duration
	getValue string
	getErr   error
	setnx    bool
	members  []string
	membErr  error
	deleted  []string
}

func (s *stubCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (s *stubCmdable) Set(_ context.Context, key string, _ any, ttl time.Duration) *redis.StatusCmd {
	s.setKey, s.setTTL = key, ttl
	return redis.NewStatusResult("OK", nil)
}

func (s *stubCmdable) Get(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult(s.getValue, s.getErr)
}

func (s *stubCmdable) SetNX(context.Context, string, any, time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(s.setnx, nil)
}

func (s *stubCmdable) Expire(context.Context, string, time.Duration) *redis.BoolCmd {
	return redis.NewBoolResult(true, nil)
}

func (s *stubCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	s.deleted = append(s.deleted, keys...)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (s *stubCmdable) SAdd(context.Context, string, ...any) *redis.IntCmd {
	return redis.NewIntResult(1, nil)
}

func (s *stubCmdable) SRem(context.Context, string, ...any) *redis.IntCmd {
	return redis.NewIntResult(1, nil)
}

func (s *stubCmdable) SMembers(context.Context, string) *redis.StringSliceCmd {
	return redis.NewStringSliceResult(s.members, s.membErr)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "lending:sess:abc", Key("sess", " abc "))
	assert.Equal(t, "lending:cron", Key("cron", ""))
	assert.Equal(t, "lending", Key())
}

func TestClientPassesThrough(t *testing.T) {
	stub := &stubCmdable{getValue: "v", setnx: true}
	c := newWithStore(stub)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	assert.Equal(t, "k", stub.setKey)
	assert.Equal(t, time.Minute, stub.setTTL)

	v, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	ok, err := c.SetNX(ctx, "k", "v", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, c.Del(ctx, "a", "b"))
	assert.Equal(t, []string{"a", "b"}, stub.deleted)
	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Close())
}

func TestGetMissingKey(t *testing.T) {
	c := newWithStore(&stubCmdable{getErr: redis.Nil})
	_, err := c.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNil))
}

func TestSMembersMissingSet(t *testing.T) {
	c := newWithStore(&stubCmdable{membErr: redis.Nil})
	members, err := c.SMembers(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, members)
}
