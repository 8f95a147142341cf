package stream

import "sync"

// Channel is the per-conversation delivery queue. Producers publish from
// orchestrator goroutines; the websocket handler is the single consumer.
// Publish never blocks past the buffer: when the consumer falls behind the
// oldest event is dropped, since a live panel only cares about fresh state.
type Channel struct {
	mu     sync.Mutex
	events chan Event
	closed bool
}

func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 64
	}
	return &Channel{events: make(chan Event, size)}
}

// Publish enqueues an event. Publishing to a closed channel is a no-op, so
// late pipeline goroutines finishing after disconnect do not panic.
func (c *Channel) Publish(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.events <- e:
			return
		default:
			select {
			case <-c.events:
			default:
			}
		}
	}
}

// Events returns the receive side for the consumer. The channel is closed by
// Close, which terminates the consumer's range loop.
func (c *Channel) Events() <-chan Event {
	return c.events
}

func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.events)
}
