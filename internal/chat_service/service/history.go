package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

const defaultHistoryTurns = 12

// HistoryStore keeps the recent turns of a conversation so follow-up
// questions can be answered in context.
type HistoryStore interface {
	Recent(ctx context.Context, userID, conversationID string) ([]models.ChatTurn, error)
	Append(ctx context.Context, userID, conversationID string, turns ...models.ChatTurn) error
	Clear(ctx context.Context, userID, conversationID string) error
}

// RedisHistory is a HistoryStore backed by one Redis list per conversation.
// The list is trimmed to a fixed window on every append and expires after
// the idle TTL, so history never grows without bound.
type RedisHistory struct {
	client *redis.Client
	turns  int
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisHistory creates a RedisHistory keeping the last turns entries per
// conversation. A zero window gets a bounded default; a zero ttl disables
// expiry.
func NewRedisHistory(client *redis.Client, turns int, ttl time.Duration, log *logger.Logger) *RedisHistory {
	if turns <= 0 {
		turns = defaultHistoryTurns
	}
	return &RedisHistory{client: client, turns: turns, ttl: ttl, log: log}
}

func historyKey(userID, conversationID string) string {
	return fmt.Sprintf("chat:history:%s:%s", userID, conversationID)
}

// Recent returns the newest turns of a conversation, oldest first. Entries
// that fail to decode are skipped rather than failing the whole read.
func (h *RedisHistory) Recent(ctx context.Context, userID, conversationID string) ([]models.ChatTurn, error) {
	key := historyKey(userID, conversationID)
	raw, err := h.client.LRange(ctx, key, int64(-h.turns), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history %s: %w", key, err)
	}

	turns := make([]models.ChatTurn, 0, len(raw))
	for _, item := range raw {
		var turn models.ChatTurn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			h.log.Warn(fmt.Sprintf("Skipping unreadable history entry in %s: %v", key, err))
			continue
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// Append stores turns at the end of the conversation, trims the window and
// refreshes the idle TTL.
func (h *RedisHistory) Append(ctx context.Context, userID, conversationID string, turns ...models.ChatTurn) error {
	if len(turns) == 0 {
		return nil
	}
	key := historyKey(userID, conversationID)

	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		if turn.CreatedAt.IsZero() {
			turn.CreatedAt = time.Now()
		}
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("failed to encode history turn: %w", err)
		}
		values = append(values, data)
	}

	pipe := h.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-h.turns), -1)
	if h.ttl > 0 {
		pipe.Expire(ctx, key, h.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store history %s: %w", key, err)
	}
	return nil
}

// Clear drops a conversation's history.
func (h *RedisHistory) Clear(ctx context.Context, userID, conversationID string) error {
	key := historyKey(userID, conversationID)
	if err := h.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to clear history %s: %w", key, err)
	}
	return nil
}

var _ HistoryStore = (*RedisHistory)(nil)
