package convo

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("conversation not found")
	ErrConversationClosed = errors.New("conversation is closed")
	ErrNotParticipant     = errors.New("agent is not a participant of this conversation")
	ErrNoParticipants     = errors.New("conversation needs at least one agent")
)

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// AuthorKind identifies who produced a turn.
type AuthorKind string

const (
	AuthorUser   AuthorKind = "user"
	AuthorAgent  AuthorKind = "agent"
	AuthorSystem AuthorKind = "system"
)

// Conversation groups an ordered, append-only log of turns under one agent
// (direct chat) or several (group chat).
type Conversation struct {
	ID             string    `json:"id"`
	AgentIDs       []string  `json:"agent_ids"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

// IsGroup reports whether more than one agent participates.
func (c Conversation) IsGroup() bool { return len(c.AgentIDs) > 1 }

// HasParticipant reports whether the agent was declared at creation time.
func (c Conversation) HasParticipant(agentID string) bool {
	for _, id := range c.AgentIDs {
		if id == agentID {
			return true
		}
	}
	return false
}

// Turn is one utterance. Turns are never mutated after append; Seq is the
// store-assigned arrival sequence and is monotonic within a conversation
// regardless of author.
type Turn struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversation_id"`
	Author         AuthorKind `json:"author"`
	AgentID        string     `json:"agent_id,omitempty"`
	Content        string     `json:"content"`
	Emotion        string     `json:"emotion,omitempty"`
	DelayMS        int64      `json:"delay_ms,omitempty"`
	ContextRef     string     `json:"context_ref,omitempty"`
	Seq            int64      `json:"seq"`
	CreatedAt      time.Time  `json:"created_at"`
}
