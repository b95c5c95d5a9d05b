package eventstream

import (
	"context"
	"encoding/json"
)

// Resource is the JSON body served for a position in the stream.
type Resource struct {
	Type    string          `json:"type,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
	Next    string          `json:"next,omitempty"`
}

// HasMessage reports whether the resource carries a non-null message.
func (r Resource) HasMessage() bool {
	return len(r.Message) > 0 && string(r.Message) != "null"
}

// HasNext reports whether the resource links to a successor.
func (r Resource) HasNext() bool { return r.Next != "" }

// Event is a delivered stream entry.
type Event struct {
	URI     string
	Type    string
	Message json.RawMessage
}

// Consumer receives events in stream order. Both methods run on the poller's
// scheduler and must not block for long.
type Consumer interface {
	OnEvent(ctx context.Context, event Event)
	OnError(ctx context.Context, uri string, err error)
}

// ConsumerFuncs adapts plain functions to Consumer. Nil fields are skipped.
type ConsumerFuncs struct {
	Event func(ctx context.Context, event Event)
	Error func(ctx context.Context, uri string, err error)
}

func (c ConsumerFuncs) OnEvent(ctx context.Context, event Event) {
	if c.Event != nil {
		c.Event(ctx, event)
	}
}

func (c ConsumerFuncs) OnError(ctx context.Context, uri string, err error) {
	if c.Error != nil {
		c.Error(ctx, uri, err)
	}
}
