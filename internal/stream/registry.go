package stream

import "sync"

// Registry maps conversation IDs to their delivery channels. The websocket
// handler registers on connect and removes on disconnect; orchestrator
// pipelines look channels up at delivery time and tolerate absence, because
// a panel may never attach or may already be gone.
type Registry struct {
	mu        sync.RWMutex
	channels  map[string]*Channel
	queueSize int
}

func NewRegistry(queueSize int) *Registry {
	return &Registry{
		channels:  make(map[string]*Channel),
		queueSize: queueSize,
	}
}

// Attach returns the conversation's channel, creating it on first use.
func (r *Registry) Attach(conversationID string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[conversationID]; ok {
		return ch
	}
	ch := NewChannel(r.queueSize)
	r.channels[conversationID] = ch
	return ch
}

// Lookup returns the channel if a consumer is attached.
func (r *Registry) Lookup(conversationID string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[conversationID]
	return ch, ok
}

// Publish delivers an event if anyone is listening. It reports whether a
// channel existed, which callers use purely for metrics.
func (r *Registry) Publish(conversationID string, e Event) bool {
	ch, ok := r.Lookup(conversationID)
	if !ok {
		return false
	}
	ch.Publish(e)
	return true
}

// Detach closes and removes the conversation's channel.
func (r *Registry) Detach(conversationID string) {
	r.mu.Lock()
	ch, ok := r.channels[conversationID]
	if ok {
		delete(r.channels, conversationID)
	}
	r.mu.Unlock()
	if ok {
		ch.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
