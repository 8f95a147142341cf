package convo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process conversation store for local/dev use
// and tests. A single mutex serializes appends, which satisfies the
// one-writer-per-conversation discipline trivially.
type InMemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*memoryConversation
}

type memoryConversation struct {
	conv  Conversation
	turns []Turn
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{convs: make(map[string]*memoryConversation)}
}

func (s *InMemoryStore) CreateConversation(_ context.Context, agentIDs []string) (Conversation, error) {
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
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs[c.ID] = &memoryConversation{conv: c}
	return c, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mc, ok := s.convs[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return mc.conv, nil
}

func (s *InMemoryStore) AppendTurn(_ context.Context, conversationID string, t Turn) (Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mc, ok := s.convs[conversationID]
	if !ok {
		return Turn{}, ErrNotFound
	}
	if mc.conv.Status != StatusOpen {
		return Turn{}, ErrConversationClosed
	}
	if t.Author == AuthorAgent && !mc.conv.HasParticipant(t.AgentID) {
		return Turn{}, ErrNotParticipant
	}

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.ConversationID = conversationID
	t.Seq = int64(len(mc.turns) + 1)
	mc.turns = append(mc.turns, t)
	mc.conv.LastActivityAt = t.CreatedAt
	return t, nil
}

func (s *InMemoryStore) RecentTurns(_ context.Context, id string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mc, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return lastN(mc.turns, limit), nil
}

func (s *InMemoryStore) Turns(_ context.Context, id string, limit, offset int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mc, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(mc.turns) {
		return nil, nil
	}
	end := len(mc.turns)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]Turn(nil), mc.turns[offset:end]...), nil
}

func (s *InMemoryStore) AgentVisibleTurns(_ context.Context, id, agentID string, limit int) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mc, ok := s.convs[id]
	if !ok {
		return nil, ErrNotFound
	}
	var visible []Turn
	for _, t := range mc.turns {
		if turnVisibleTo(t, agentID) {
			visible = append(visible, t)
		}
	}
	return lastN(visible, limit), nil
}

func (s *InMemoryStore) CloseConversation(_ context.Context, id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mc, ok := s.convs[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	mc.conv.Status = StatusClosed
	mc.conv.LastActivityAt = time.Now().UTC()
	return mc.conv, nil
}

func (s *InMemoryStore) Close() error { return nil }

func lastN(turns []Turn, limit int) []Turn {
	if limit <= 0 || limit > len(turns) {
		limit = len(turns)
	}
	out := make([]Turn, limit)
	copy(out, turns[len(turns)-limit:])
	return out
}

// turnVisibleTo implements the group-chat isolation rule: an agent's context
// contains user and system turns plus its own prior replies, never the
// replies of sibling agents.
func turnVisibleTo(t Turn, agentID string) bool {
	if t.Author != AuthorAgent {
		return true
	}
	return t.AgentID == agentID
}
