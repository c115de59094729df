package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"future-self-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// HistoryCache 在 Redis 中缓存每个会话最近的消息窗口，供人格提示组装使用。
// 数据库仍是唯一的事实来源，缓存缺失时由调用方回源后 Store。
type HistoryCache interface {
	// Get 返回缓存的窗口；未命中时 ok 为 false。
	Get(ctx context.Context, conversationID model.ID) (msgs []model.Message, ok bool, err error)
	// Store 用完整历史覆盖缓存，仅保留最后 window 条。
	Store(ctx context.Context, conversationID model.ID, msgs []model.Message) error
	// Append 仅在缓存已存在时追加，避免写入不完整的窗口。
	Append(ctx context.Context, conversationID model.ID, msgs ...model.Message) error
	Invalidate(ctx context.Context, conversationID model.ID) error
}

type redisHistoryCache struct {
	redisClient *redis.Client
	window      int
	ttl         time.Duration
}

// NewRedisHistoryCache 创建基于 Redis list 的 HistoryCache。
func NewRedisHistoryCache(redisClient *redis.Client, window int, ttl time.Duration) HistoryCache {
	return &redisHistoryCache{redisClient: redisClient, window: window, ttl: ttl}
}

func historyKey(conversationID model.ID) string {
	return fmt.Sprintf("conversation:%s:history", conversationID)
}

func encodeMessages(msgs []model.Message) ([]interface{}, error) {
	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(cachedMessage{
			ID: m.ID, Seq: m.Seq, Role: m.Role, Content: m.Content, Timestamp: m.Timestamp,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message: %w", err)
		}
		values = append(values, data)
	}
	return values, nil
}

// cachedMessage 保留 model.Message 中 json:"-" 的 Seq 字段。
type cachedMessage struct {
	ID        model.ID          `json:"id"`
	Seq       int               `json:"seq"`
	Role      model.MessageRole `json:"role"`
	Content   string            `json:"content"`
	Timestamp time.Time         `json:"timestamp"`
}

func (c *redisHistoryCache) Get(ctx context.Context, conversationID model.ID) ([]model.Message, bool, error) {
	key := historyKey(conversationID)
	raw, err := c.redisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get conversation history: %w", err)
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	msgs := make([]model.Message, 0, len(raw))
	for _, item := range raw {
		var cm cachedMessage
		if err := json.Unmarshal([]byte(item), &cm); err != nil {
			return nil, false, fmt.Errorf("failed to unmarshal conversation history: %w", err)
		}
		msgs = append(msgs, model.Message{
			ID: cm.ID, ConversationID: conversationID, Seq: cm.Seq,
			Role: cm.Role, Content: cm.Content, Timestamp: cm.Timestamp,
		})
	}
	return msgs, true, nil
}

func (c *redisHistoryCache) Store(ctx context.Context, conversationID model.ID, msgs []model.Message) error {
	if len(msgs) > c.window {
		msgs = msgs[len(msgs)-c.window:]
	}
	key := historyKey(conversationID)
	values, err := encodeMessages(msgs)
	if err != nil {
		return err
	}
	_, err = c.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}

func (c *redisHistoryCache) Append(ctx context.Context, conversationID model.ID, msgs ...model.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	key := historyKey(conversationID)
	values, err := encodeMessages(msgs)
	if err != nil {
		return err
	}
	_, err = c.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPushX(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-c.window), -1)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append conversation history: %w", err)
	}
	return nil
}

func (c *redisHistoryCache) Invalidate(ctx context.Context, conversationID model.ID) error {
	if err := c.redisClient.Del(ctx, historyKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation history: %w", err)
	}
	return nil
}
