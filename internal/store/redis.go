package store

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"

	"github.com/zhouzirui/relay-chat/backend/internal/model/chat"
)

// DefaultRedisKey is the list holding the history when none is configured.
const DefaultRedisKey = "chat:messages"

// RedisStore keeps a rolling window of messages in one Redis list, newest at the head.
type RedisStore struct {
	rdb   redis.UniversalClient
	key   string
	limit int
}

// NewRedisStore uses rdb for all calls. Close closes rdb.
func NewRedisStore(rdb redis.UniversalClient, key string, limit int) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{rdb: rdb, key: key, limit: normalizeLimit(limit)}
}

// SaveMessage pushes msg and trims the list to the limit in one transaction.
func (s *RedisStore) SaveMessage(ctx context.Context, msg chat.Message) error {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "encode message")
	}
	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, s.key, payload)
	pipe.LTrim(ctx, s.key, 0, int64(s.limit-1))
	_, err = pipe.Exec(ctx)
	return errors.Wrap(err, "redis push")
}

func (s *RedisStore) RecentMessages(ctx context.Context) ([]chat.Message, error) {
	vals, err := s.rdb.LRange(ctx, s.key, 0, int64(s.limit-1)).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis range")
	}
	return decodeNewestFirst(vals)
}

func (s *RedisStore) ClearMessages(ctx context.Context) error {
	return errors.Wrap(s.rdb.Del(ctx, s.key).Err(), "redis del")
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// decodeNewestFirst turns a head-first list into chronological messages.
func decodeNewestFirst(vals []string) ([]chat.Message, error) {
	messages := make([]chat.Message, 0, len(vals))
	for _, raw := range vals {
		var msg chat.Message
		if err := sonic.UnmarshalString(raw, &msg); err != nil {
			return nil, errors.Wrap(err, "decode message")
		}
		messages = append(messages, msg)
	}
	return lo.Reverse(messages), nil
}
