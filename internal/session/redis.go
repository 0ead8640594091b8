package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "booking:session:"

// RedisStore は会話状態をJSONとしてRedisに保存し、TTLで失効させます
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisStore は新しいRedisStoreを作成します
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// NewRedisClient は REDIS_HOST の値から接続を作成します
// redis:// 形式のURLと host:port 形式の両方を受け付けます
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis %s: %w", opts.Addr, err)
	}
	return client, nil
}

func key(chatID string) string {
	return keyPrefix + chatID
}

func (s *RedisStore) Get(ctx context.Context, chatID string) (*State, error) {
	data, err := s.client.Get(ctx, key(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", chatID, err)
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", chatID, err)
	}
	return &st, nil
}

func (s *RedisStore) Put(ctx context.Context, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", st.ChatID, err)
	}
	if err := s.client.Set(ctx, key(st.ChatID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session %s: %w", st.ChatID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, chatID string) error {
	if err := s.client.Del(ctx, key(chatID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", chatID, err)
	}
	return nil
}
