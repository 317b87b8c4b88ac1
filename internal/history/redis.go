package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/pampa/chatd/internal/model"
)

// RedisStore persists each room's log in a sorted set scored by sequence
// number. Keys are chat:history:<room>. Optional Retain trims the set to
// the newest N entries after each append.
type RedisStore struct {
	client *redis.Client
	retain int
}

// NewRedisStore wraps an existing Redis client. retain <= 0 means
// unbounded.
func NewRedisStore(client *redis.Client, retain int) *RedisStore {
	return &RedisStore{client: client, retain: retain}
}

func historyKey(roomID string) string {
	return "chat:history:" + roomID
}

// Append implements Store.
func (s *RedisStore) Append(ctx context.Context, msg model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	key := historyKey(msg.RoomID)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(msg.Seq), Member: string(data)})
	if s.retain > 0 {
		pipe.ZRemRangeByRank(ctx, key, 0, int64(-s.retain-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Query implements Store.
func (s *RedisStore) Query(ctx context.Context, roomID string, since int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}

	entries, err := s.client.ZRangeByScore(ctx, historyKey(roomID), &redis.ZRangeBy{
		Min:   "(" + strconv.FormatInt(since, 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}

	msgs := make([]model.Message, 0, len(entries))
	for _, e := range entries {
		var m model.Message
		if err := json.Unmarshal([]byte(e), &m); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// LastSeq implements Store.
func (s *RedisStore) LastSeq(ctx context.Context, roomID string) (int64, error) {
	zs, err := s.client.ZRevRangeWithScores(ctx, historyKey(roomID), 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	if len(zs) == 0 {
		return 0, nil
	}
	return int64(zs[0].Score), nil
}

// Close implements Store.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
