// Package redis implements the record store using Redis/Valkey.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dwsmith1983/contractsync/internal/failure"
	"github.com/dwsmith1983/contractsync/internal/store"
	luascripts "github.com/dwsmith1983/contractsync/internal/store/redis/lua"
	"github.com/dwsmith1983/contractsync/pkg/types"
)

// Compile-time interface satisfaction check.
var _ store.Store = (*RedisStore)(nil)

const defaultPrefix = "contractsync:"

// RedisStore implements store.Store backed by Redis/Valkey.
type RedisStore struct {
	client       *goredis.Client
	prefix       string
	upsertScript *goredis.Script
	casScript    *goredis.Script
}

// New creates a new RedisStore.
func New(cfg *types.RedisConfig) *RedisStore {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(client, cfg.KeyPrefix)
}

// NewFromClient creates a RedisStore from an existing client (useful for testing).
func NewFromClient(client *goredis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &RedisStore{
		client:       client,
		prefix:       prefix,
		upsertScript: goredis.NewScript(luascripts.Upsert),
		casScript:    goredis.NewScript(luascripts.CompareAndSwap),
	}
}

// Ping checks connectivity to the Redis server.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) recordKey(email string) string { return s.prefix + "contract:" + email }
func (s *RedisStore) envelopeKey(id string) string  { return s.prefix + "envelope:" + id }
func (s *RedisStore) statusPrefix() string          { return s.prefix + "status:" }
func (s *RedisStore) statusKey(st types.ContractStatus) string {
	return s.statusPrefix() + string(st)
}

// Get retrieves a record by email.
func (s *RedisStore) Get(ctx context.Context, email string) (*types.ContractRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(store.NormalizeEmail(email))).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get contract %q: %w", email, err)
	}
	var rec types.ContractRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode contract %q: %w", email, err)
	}
	return &rec, nil
}

// GetByEnvelope follows the envelope index to the current record.
func (s *RedisStore) GetByEnvelope(ctx context.Context, envelopeID string) (*types.ContractRecord, error) {
	email, err := s.client.Get(ctx, s.envelopeKey(envelopeID)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get envelope %q: %w", envelopeID, err)
	}
	rec, err := s.Get(ctx, email)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.EnvelopeID != envelopeID {
		return nil, nil
	}
	return rec, nil
}

// Upsert writes the record atomically unless the stored one is terminal.
func (s *RedisStore) Upsert(ctx context.Context, rec types.ContractRecord) error {
	rec.Email = store.NormalizeEmail(rec.Email)
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	keys := []string{s.recordKey(rec.Email), s.envelopeKey(rec.EnvelopeID), s.statusKey(rec.Status)}
	res, err := s.upsertScript.Run(ctx, s.client, keys,
		string(data), rec.Email, rec.UpdatedAt.UnixMilli(), s.statusPrefix(), rec.EnvelopeID).Int()
	if err != nil {
		return fmt.Errorf("upsert contract %q: %w", rec.Email, err)
	}
	if res == 0 {
		return fmt.Errorf("%w: contract %q is already terminal", failure.ErrConflictingTerminalState, rec.Email)
	}
	return nil
}

// CompareAndSwap atomically replaces the record if its status matches
// expected and its envelope id matches next.EnvelopeID.
func (s *RedisStore) CompareAndSwap(ctx context.Context, email string, expected types.ContractStatus, next types.ContractRecord) (bool, error) {
	next.Email = store.NormalizeEmail(email)
	data, err := json.Marshal(next)
	if err != nil {
		return false, err
	}

	keys := []string{
		s.recordKey(next.Email),
		s.statusKey(expected),
		s.statusKey(next.Status),
		s.envelopeKey(next.EnvelopeID),
	}
	res, err := s.casScript.Run(ctx, s.client, keys,
		string(expected), string(data), next.Email, next.UpdatedAt.UnixMilli(), next.EnvelopeID).Int()
	if err != nil {
		return false, fmt.Errorf("swap contract %q: %w", next.Email, err)
	}
	return res == 1, nil
}

// ListByStatus returns records from the status set, oldest update first.
func (s *RedisStore) ListByStatus(ctx context.Context, status types.ContractStatus, limit int) ([]types.ContractRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	emails, err := s.client.ZRange(ctx, s.statusKey(status), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list status %s: %w", status, err)
	}
	if len(emails) == 0 {
		return nil, nil
	}

	keys := make([]string, len(emails))
	for i, e := range emails {
		keys[i] = s.recordKey(e)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load status %s: %w", status, err)
	}

	records := make([]types.ContractRecord, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var rec types.ContractRecord
		if err := json.Unmarshal([]byte(str), &rec); err != nil {
			continue
		}
		if rec.Status == status {
			records = append(records, rec)
		}
	}
	return records, nil
}
