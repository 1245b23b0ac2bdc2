package syncengine

import "sync"

// Exported constants.
const (
	// EventBufferSize absorbs bursts from many workers before senders block.
	EventBufferSize = 256
)

// ChannelEmitter delivers events to a single consumer. Emit blocks while the
// buffer is full, so no event is ever dropped while the emitter is open.
type ChannelEmitter struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewChannelEmitter creates an emitter with the given buffer size.
func NewChannelEmitter(buffer int) *ChannelEmitter {
	return &ChannelEmitter{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

// Emit implements EventEmitter. After Close it returns without delivering.
func (c *ChannelEmitter) Emit(event Event) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.events <- event:
	case <-c.done:
	}
}

// Events returns the receive side.
func (c *ChannelEmitter) Events() <-chan Event {
	return c.events
}

// Done is closed by Close.
func (c *ChannelEmitter) Done() <-chan struct{} {
	return c.done
}

// Close releases blocked senders. The event channel itself stays open so late
// senders never panic.
func (c *ChannelEmitter) Close() {
	c.once.Do(func() { close(c.done) })
}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(Event)

// Emit implements EventEmitter.
func (f EmitterFunc) Emit(event Event) { f(event) }
