// Package redis provides a checkpoint store backed by Redis.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smallnest/mailtriage/store"
)

// RedisCheckpointStore implements store.CheckpointStore using Redis. Each
// session keeps a sorted set of checkpoints scored by Seq, so Latest is a
// single ZRANGE from the tail.
type RedisCheckpointStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOptions configuration for the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Key prefix, default "mailtriage:"
	TTL      time.Duration // Expiration for session keys, default 0 (no expiration)
}

// NewRedisCheckpointStore creates a new Redis checkpoint store.
func NewRedisCheckpointStore(opts RedisOptions) *RedisCheckpointStore {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisCheckpointStoreWithClient(client, opts.Prefix, opts.TTL)
}

// NewRedisCheckpointStoreWithClient creates a store around an existing client.
// Useful for tests with miniredis.
func NewRedisCheckpointStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisCheckpointStore {
	if prefix == "" {
		prefix = "mailtriage:"
	}
	return &RedisCheckpointStore{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the underlying client.
func (s *RedisCheckpointStore) Close() error {
	return s.client.Close()
}

func (s *RedisCheckpointStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s:checkpoints", s.prefix, sessionID)
}

// Save stores a checkpoint.
func (s *RedisCheckpointStore) Save(ctx context.Context, checkpoint *store.Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return &store.StorageError{Op: "save", Err: err}
	}

	key := s.sessionKey(checkpoint.SessionID)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(checkpoint.Seq), Member: string(data)})
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &store.StorageError{Op: "save", Err: err}
	}
	return nil
}

// Latest returns the highest-Seq checkpoint for a session.
func (s *RedisCheckpointStore) Latest(ctx context.Context, sessionID string) (*store.Checkpoint, error) {
	members, err := s.client.ZRange(ctx, s.sessionKey(sessionID), -1, -1).Result()
	if err != nil {
		return nil, &store.StorageError{Op: "latest", Err: err}
	}
	if len(members) == 0 {
		return nil, store.ErrNotFound
	}

	var cp store.Checkpoint
	if err := json.Unmarshal([]byte(members[0]), &cp); err != nil {
		return nil, &store.StorageError{Op: "latest", Err: err}
	}
	return &cp, nil
}

// List returns all checkpoints for a session in ascending Seq order.
func (s *RedisCheckpointStore) List(ctx context.Context, sessionID string) ([]*store.Checkpoint, error) {
	members, err := s.client.ZRange(ctx, s.sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, &store.StorageError{Op: "list", Err: err}
	}

	checkpoints := make([]*store.Checkpoint, 0, len(members))
	for _, member := range members {
		var cp store.Checkpoint
		if err := json.Unmarshal([]byte(member), &cp); err != nil {
			return nil, &store.StorageError{Op: "list", Err: err}
		}
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, nil
}

// Clear removes all checkpoints for a session.
func (s *RedisCheckpointStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.sessionKey(sessionID)).Err(); err != nil {
		return &store.StorageError{Op: "clear", Err: err}
	}
	return nil
}
