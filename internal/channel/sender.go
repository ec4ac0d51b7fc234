// Package channel holds one Sender per delivery channel plus the
// Registry the queue engine and campaign dispatcher resolve them from.
// Senders classify failures through the shared error taxonomy: a
// retryable StandardError means the caller may reschedule, a
// non-retryable one means the recipient or message is bad and retrying
// cannot help.
package channel

import (
	"context"

	errs "delivery-pipeline/internal/common/errors"
	"delivery-pipeline/internal/models"
)

// Message is the rendered payload handed to a Sender. To carries the
// channel-specific address: an email address, an E.164 phone number, a
// push target ARN, or a user id for the in-app inbox.
type Message struct {
	TaskID   string
	UserID   string
	To       string
	Subject  string
	Body     string
	HTMLBody string
}

// Sender delivers one message and returns the provider message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Registry maps channels to senders. Channels without a registered
// sender are reported as unknown so tasks for disabled channels fail
// fast instead of retrying.
type Registry struct {
	senders map[models.Channel]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[models.Channel]Sender)}
}

func (r *Registry) Register(ch models.Channel, s Sender) {
	r.senders[ch] = s
}

func (r *Registry) Get(ch models.Channel) (Sender, error) {
	s, ok := r.senders[ch]
	if !ok {
		return nil, errs.NewUnknownChannelError(string(ch))
	}
	return s, nil
}

func (r *Registry) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(r.senders))
	for ch := range r.senders {
		out = append(out, ch)
	}
	return out
}
