package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/store/storetest"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

func setupTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := NewFromClient(client, "test:")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestConformance(t *testing.T) {
	s, _ := setupTestStore(t)
	storetest.RunAll(t, s)
}

func TestUpsert_KeyLayout(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	rec := storetest.Record("Joao@Email.com", "env-1")
	require.NoError(t, s.Upsert(ctx, rec))

	assert.True(t, mr.Exists("test:contract:joao@email.com"))
	email, err := mr.Get("test:envelope:env-1")
	require.NoError(t, err)
	assert.Equal(t, "joao@email.com", email)

	members, err := mr.ZMembers("test:status:SENT")
	require.NoError(t, err)
	assert.Equal(t, []string{"joao@email.com"}, members)
}

func TestCompareAndSwap_MovesStatusSet(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	rec := storetest.Record("joao@email.com", "env-1")
	require.NoError(t, s.Upsert(ctx, rec))

	signed := rec
	signed.Status = types.ContractSigned
	now := time.Now().UTC()
	signed.CompletedAt = &now
	signed.UpdatedAt = now

	ok, err := s.CompareAndSwap(ctx, "joao@email.com", types.ContractSent, signed)
	require.NoError(t, err)
	require.True(t, ok)

	sent, _ := mr.ZMembers("test:status:SENT")
	assert.Empty(t, sent)
	members, err := mr.ZMembers("test:status:SIGNED")
	require.NoError(t, err)
	assert.Equal(t, []string{"joao@email.com"}, members)

	err = s.Upsert(ctx, storetest.Record("joao@email.com", "env-2"))
	assert.ErrorIs(t, err, failure.ErrConflictingTerminalState)
}

func TestGet_Corrupt(t *testing.T) {
	s, mr := setupTestStore(t)
	require.NoError(t, mr.Set("test:contract:bad@example.com", "{not json"))

	_, err := s.Get(context.Background(), "bad@example.com")
	assert.Error(t, err)
}

func TestPing_ServerDown(t *testing.T) {
	s, mr := setupTestStore(t)
	mr.Close()
	assert.Error(t, s.Ping(context.Background()))
}

func TestNewFromClient_DefaultPrefix(t *testing.T) {
	s := NewFromClient(goredis.NewClient(&goredis.Options{Addr: "localhost:0"}), "")
	defer s.Close()
	assert.Equal(t, "contractsync:contract:a@b.co", s.recordKey("a@b.co"))
}
