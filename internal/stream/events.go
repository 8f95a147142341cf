package stream

import "time"

// EventType identifies websocket payload variants pushed to panel clients.
type EventType string

const (
	TypeReady          EventType = "ready"
	TypeTypingStart    EventType = "typing_start"
	TypeTypingProgress EventType = "typing_progress"
	TypeMessage        EventType = "message"
	TypeError          EventType = "error"
	TypeSessionClosed  EventType = "session_closed"
)

// Event is the single wire shape for all server pushes. Fields that do not
// apply to a given type are omitted from the JSON.
type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id,omitempty"`
	AgentName      string    `json:"agent_name,omitempty"`
	Content        string    `json:"content,omitempty"`
	Emotion        string    `json:"emotion,omitempty"`
	DelayMS        int64     `json:"delay_ms,omitempty"`
	Percent        int       `json:"percent,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	TSMs           int64     `json:"ts_ms"`
}

func now() int64 { return time.Now().UnixMilli() }

func Ready(conversationID string) Event {
	return Event{Type: TypeReady, ConversationID: conversationID, TSMs: now()}
}

func TypingStart(conversationID, agentID, agentName string) Event {
	return Event{Type: TypeTypingStart, ConversationID: conversationID, AgentID: agentID, AgentName: agentName, TSMs: now()}
}

func TypingProgress(conversationID, agentID string, percent int) Event {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	return Event{Type: TypeTypingProgress, ConversationID: conversationID, AgentID: agentID, Percent: percent, TSMs: now()}
}

func AgentMessage(conversationID, agentID, agentName, content, emotion string, delay time.Duration) Event {
	return Event{
		Type:           TypeMessage,
		ConversationID: conversationID,
		AgentID:        agentID,
		AgentName:      agentName,
		Content:        content,
		Emotion:        emotion,
		DelayMS:        delay.Milliseconds(),
		TSMs:           now(),
	}
}

func AgentError(conversationID, agentID, detail string) Event {
	return Event{Type: TypeError, ConversationID: conversationID, AgentID: agentID, Detail: detail, TSMs: now()}
}

func SessionClosed(conversationID string) Event {
	return Event{Type: TypeSessionClosed, ConversationID: conversationID, TSMs: now()}
}
