package sender

import (
	"context"

	"github.com/taskhive/pushguard/internal/domain"
)

// SendFunc delivers one payload to a destination token. It is the outbound
// port of the retry engine; the transport behind it is a collaborator, not
// part of the engine. Implementations must return an error on any failed
// delivery, ideally a *SendError carrying a classification code.
type SendFunc func(ctx context.Context, destinationToken string, payload domain.Payload) error

// Sender is the interface form of SendFunc for transport adapters.
type Sender interface {
	Send(ctx context.Context, destinationToken string, payload domain.Payload) error
}

// Func adapts a Sender to a SendFunc.
func Func(s Sender) SendFunc {
	return s.Send
}
