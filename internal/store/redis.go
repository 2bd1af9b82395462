package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/parleychat/parley/internal/models"
)

// RedisStore is the Redis message log backend, used when REDIS_URL is
// configured. Each room's messages live in a sorted set scored by timestamp;
// a companion set tracks which rooms currently hold messages so
// DistinctRooms stays a single SMEMBERS. Durability follows the Redis
// instance's persistence configuration (AOF recommended).
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() {
	s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// roomMessagesKey returns the key for a room's message sorted set.
func roomMessagesKey(room string) string {
	return fmt.Sprintf("parley:room:%s:messages", room)
}

const (
	roomsKey = "parley:rooms"
	seqKey   = "parley:seq"
)

// Append persists one message. The sorted-set member is prefixed with a
// global sequence number so that messages sharing a timestamp keep their
// insertion order (members with equal scores sort lexically).
func (s *RedisStore) Append(ctx context.Context, msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: append marshal: %v", ErrStorage, err)
	}

	seq, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return fmt.Errorf("%w: append seq: %v", ErrStorage, err)
	}

	ts, err := time.Parse(models.TimestampLayout, msg.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	member := fmt.Sprintf("%016d:%s", seq, data)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, roomMessagesKey(msg.Room), redis.Z{
		Score:  float64(ts.UnixMilli()),
		Member: member,
	})
	pipe.SAdd(ctx, roomsKey, msg.Room)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: append: %v", ErrStorage, err)
	}

	return nil
}

// History returns all messages for a room, oldest first.
func (s *RedisStore) History(ctx context.Context, room string) ([]models.Message, error) {
	results, err := s.client.ZRange(ctx, roomMessagesKey(room), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: history: %v", ErrStorage, err)
	}

	messages := make([]models.Message, 0, len(results))
	for _, member := range results {
		_, data, found := strings.Cut(member, ":")
		if !found {
			continue
		}
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// DeleteRoom removes all messages for a room and returns the rows deleted.
func (s *RedisStore) DeleteRoom(ctx context.Context, room string) (int64, error) {
	key := roomMessagesKey(room)

	count, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: delete room: %v", ErrStorage, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, roomsKey, room)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("%w: delete room: %v", ErrStorage, err)
	}

	return count, nil
}

// DistinctRooms returns the rooms that currently have at least one message.
func (s *RedisStore) DistinctRooms(ctx context.Context) ([]string, error) {
	rooms, err := s.client.SMembers(ctx, roomsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: distinct rooms: %v", ErrStorage, err)
	}
	if rooms == nil {
		rooms = []string{}
	}
	return rooms, nil
}
