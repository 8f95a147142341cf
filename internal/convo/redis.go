package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	convKeyPrefix  = "conv:"
	turnsKeySuffix = ":turns"
)

// RedisStore keeps each conversation as a JSON value plus a turn list.
// RPUSH serializes concurrent appends on the server side, so the list
// position is the arrival order; the open/closed check runs under WATCH so
// a close racing an append forces a retry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, client *redis.Client) (*RedisStore, error) {
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) convKey(id string) string  { return convKeyPrefix + id }
func (s *RedisStore) turnsKey(id string) string { return convKeyPrefix + id + turnsKeySuffix }

func (s *RedisStore) CreateConversation(ctx context.Context, agentIDs []string) (Conversation, error) {
	if len(agentIDs) == 0 {
		return Conversation{}, ErrNoParticipants
	}
	now := time.Now().UTC()
	c := Conversation{
		ID:             uuid.NewString(),
		AgentIDs:       append([]string(nil), agentIDs...),
		Status:         StatusOpen,
		CreatedAt:      now,
		LastActivityAt: now,
	}
	val, err := json.Marshal(c)
	if err != nil {
		return Conversation{}, fmt.Errorf("encode conversation: %w", err)
	}
	if err := s.client.Set(ctx, s.convKey(c.ID), val, 0).Err(); err != nil {
		return Conversation{}, fmt.Errorf("save conversation: %w", err)
	}
	return c, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (Conversation, error) {
	val, err := s.client.Get(ctx, s.convKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("load conversation: %w", err)
	}
	var c Conversation
	if err := json.Unmarshal([]byte(val), &c); err != nil {
		return Conversation{}, fmt.Errorf("decode conversation: %w", err)
	}
	return c, nil
}

const appendRetries = 3

func (s *RedisStore) AppendTurn(ctx context.Context, conversationID string, t Turn) (Turn, error) {
	var stored Turn
	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		stored, lastErr = s.tryAppend(ctx, conversationID, t)
		if !errors.Is(lastErr, redis.TxFailedErr) {
			return stored, lastErr
		}
	}
	return Turn{}, fmt.Errorf("append contention: %w", lastErr)
}

func (s *RedisStore) tryAppend(ctx context.Context, conversationID string, t Turn) (Turn, error) {
	key := s.convKey(conversationID)
	var out Turn

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var c Conversation
		if err := json.Unmarshal([]byte(val), &c); err != nil {
			return fmt.Errorf("decode conversation: %w", err)
		}
		if c.Status != StatusOpen {
			return ErrConversationClosed
		}
		if t.Author == AuthorAgent && !c.HasParticipant(t.AgentID) {
			return ErrNotParticipant
		}

		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		t.ConversationID = conversationID
		c.LastActivityAt = t.CreatedAt

		newConv, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("encode conversation: %w", err)
		}

		var push *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			// Seq is filled from the list length after the push; encode a
			// placeholder and rely on list position for read-back order.
			turnVal, err := json.Marshal(t)
			if err != nil {
				return err
			}
			push = pipe.RPush(ctx, s.turnsKey(conversationID), turnVal)
			pipe.Set(ctx, key, newConv, 0)
			return nil
		})
		if err != nil {
			return err
		}
		t.Seq = push.Val()
		out = t
		return nil
	}, key)

	if err != nil {
		return Turn{}, err
	}
	return out, nil
}

func (s *RedisStore) RecentTurns(ctx context.Context, id string, limit int) ([]Turn, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	n, err := s.client.LLen(ctx, s.turnsKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("count turns: %w", err)
	}
	start := n - int64(limit)
	if start < 0 {
		start = 0
	}
	vals, err := s.client.LRange(ctx, s.turnsKey(id), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load recent turns: %w", err)
	}
	return decodeTurns(vals, start)
}

func (s *RedisStore) Turns(ctx context.Context, id string, limit, offset int) ([]Turn, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	vals, err := s.client.LRange(ctx, s.turnsKey(id), int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	return decodeTurns(vals, int64(offset))
}

func (s *RedisStore) AgentVisibleTurns(ctx context.Context, id, agentID string, limit int) ([]Turn, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	// Filtering happens client-side; the full log is read because sibling
	// turns interleave arbitrarily with visible ones.
	vals, err := s.client.LRange(ctx, s.turnsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load turns: %w", err)
	}
	all, err := decodeTurns(vals, 0)
	if err != nil {
		return nil, err
	}
	var visible []Turn
	for _, t := range all {
		if turnVisibleTo(t, agentID) {
			visible = append(visible, t)
		}
	}
	return lastN(visible, limit), nil
}

func (s *RedisStore) CloseConversation(ctx context.Context, id string) (Conversation, error) {
	key := s.convKey(id)
	var out Conversation
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var c Conversation
		if err := json.Unmarshal([]byte(val), &c); err != nil {
			return fmt.Errorf("decode conversation: %w", err)
		}
		c.Status = StatusClosed
		c.LastActivityAt = time.Now().UTC()
		newVal, err := json.Marshal(c)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, 0)
			return nil
		})
		if err != nil {
			return err
		}
		out = c
		return nil
	}, key)
	if err != nil {
		return Conversation{}, err
	}
	return out, nil
}

func (s *RedisStore) Close() error { return s.client.Close() }

func decodeTurns(vals []string, baseSeq int64) ([]Turn, error) {
	out := make([]Turn, 0, len(vals))
	for i, v := range vals {
		var t Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		if t.Seq == 0 {
			t.Seq = baseSeq + int64(i) + 1
		}
		out = append(out, t)
	}
	return out, nil
}
