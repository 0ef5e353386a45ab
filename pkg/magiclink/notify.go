package magiclink

import (
	"context"
	"time"

	"github.com/Aleut-Geoff-Vaughan/myscheduling/pkg/observability"
)

// Message is the hand-off to the notification gateway. LinkURL embeds
// the raw token; implementations must not log it.
type Message struct {
	ToEmail       string
	LinkURL       string
	ExpiresAt     time.Time
	RequestFromIP string
}

// Notifier delivers magic link messages. Implementations are invoked
// only after the token row is durably written.
type Notifier interface {
	SendMagicLinkMessage(ctx context.Context, msg Message) error
}

// LogNotifier records that a message would have been sent. It is the
// default when no gateway is wired, and deliberately omits the link.
type LogNotifier struct {
	Logger *observability.Logger
}

func (n *LogNotifier) SendMagicLinkMessage(ctx context.Context, msg Message) error {
	n.Logger.WithComponent("magiclink-notifier").
		WithField("to_email", msg.ToEmail).
		WithField("expires_at", msg.ExpiresAt.Format(time.RFC3339)).
		Info("magic link message ready for delivery")
	return nil
}
