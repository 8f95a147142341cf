package orchestrator

import "time"

// AgentReply is one delivered reply inside a fan-out round.
type AgentReply struct {
	AgentID   string        `json:"agent_id"`
	AgentName string        `json:"agent_name"`
	Content   string        `json:"content"`
	Emotion   string        `json:"emotion"`
	Delay     time.Duration `json:"delay_ms"`
	Elapsed   time.Duration `json:"elapsed_ms"`
}

// AgentFailure records a pipeline that did not deliver. The agent identity
// is preserved so the panel can show who stayed silent and why.
type AgentFailure struct {
	AgentID   string `json:"agent_id"`
	AgentName string `json:"agent_name"`
	Reason    string `json:"reason"`
	Err       error  `json:"-"`
}

// Result aggregates one fan-out round. Replies stream to the panel as they
// complete; Result is the summary view for the synchronous caller.
type Result struct {
	ConversationID string         `json:"conversation_id"`
	Replies        []AgentReply   `json:"replies"`
	Failures       []AgentFailure `json:"failures"`
	InvalidAgents  []string       `json:"invalid_agents,omitempty"`
	Elapsed        time.Duration  `json:"elapsed_ms"`
}

func (r *Result) Succeeded() int { return len(r.Replies) }
func (r *Result) Failed() int    { return len(r.Failures) }
