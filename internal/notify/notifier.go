package notify

import (
	"context"
	"errors"
)

// Fact is a name/value pair rendered in notification bodies.
type Fact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Message is a channel-agnostic notification. Delivery is best-effort
// everywhere in the engine: a failed send never affects request state.
type Message struct {
	To      []string
	Subject string
	Body    string
	Facts   []Fact
	LinkURL string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// Noop is used when no channel is configured.
type Noop struct{}

func (Noop) Send(ctx context.Context, msg Message) error { return nil }

// Multi fans a message out to every configured channel and reports the
// joined failures, still attempting all channels first.
type Multi struct {
	Notifiers []Notifier
}

func (m Multi) Send(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range m.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
