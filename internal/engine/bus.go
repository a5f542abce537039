package engine

import "context"

// Notice is a node lifecycle announcement published on the message bus.
// Inter-node coordination is out of scope; the bus exists so external
// consumers can observe runs without holding a progress callback.
type Notice struct {
	RunID  string        `json:"run_id"`
	NodeID string        `json:"node_id"`
	State  TerminalState `json:"state,omitempty"`
	Event  string        `json:"event"` // "node_started" or "node_finished"
}

// MessageBus receives run lifecycle notices. Publish must be safe for
// concurrent use.
type MessageBus interface {
	Publish(ctx context.Context, n Notice) error
}

// NopBus discards every notice.
type NopBus struct{}

func (NopBus) Publish(context.Context, Notice) error { return nil }
