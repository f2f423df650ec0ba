package events

import "lancechain/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (RPC streams, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter satisfies Emitter while discarding all events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Payload wraps a types.Event so it can travel through an Emitter.
type Payload struct {
	Evt *types.Event
}

// EventType implements Event.
func (p Payload) EventType() string {
	if p.Evt == nil {
		return ""
	}
	return p.Evt.Type
}

// Event returns the wrapped payload.
func (p Payload) Event() *types.Event { return p.Evt }

// Unwrap extracts a types.Event from evt, falling back to a bare event
// carrying only the type when evt does not expose a payload.
func Unwrap(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if provider, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := provider.Event(); payload != nil {
			return payload
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}
