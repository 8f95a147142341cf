package convo

import "context"

// Store persists conversations and their append-only turn logs. Appends are
// atomic: one logical writer per conversation at a time, with the store's
// arrival order as the only sequencing authority. Reads are unrestricted.
type Store interface {
	CreateConversation(ctx context.Context, agentIDs []string) (Conversation, error)
	Get(ctx context.Context, id string) (Conversation, error)

	// AppendTurn validates the conversation is open and, for agent turns,
	// that the author is a declared participant. It assigns ID, Seq and
	// CreatedAt and returns the stored turn.
	AppendTurn(ctx context.Context, conversationID string, t Turn) (Turn, error)

	// RecentTurns returns the last limit turns, oldest first.
	RecentTurns(ctx context.Context, id string, limit int) ([]Turn, error)

	// Turns pages the full log from the start, oldest first.
	Turns(ctx context.Context, id string, limit, offset int) ([]Turn, error)

	// AgentVisibleTurns returns the bounded context window one agent is
	// allowed to see inside a group conversation: user and system turns
	// plus that agent's own, never sibling agents' replies.
	AgentVisibleTurns(ctx context.Context, id, agentID string, limit int) ([]Turn, error)

	// CloseConversation transitions to closed; subsequent appends fail with
	// ErrConversationClosed.
	CloseConversation(ctx context.Context, id string) (Conversation, error)

	Close() error
}
