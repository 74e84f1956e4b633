package slack

import (
	"context"

	"github.com/m-mizutani/ghrelease/pkg/domain/interfaces"
	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

// Notifier posts messages to a Slack incoming webhook
type Notifier struct {
	webhookURL string
	channel    string
}

var _ interfaces.Notifier = (*Notifier)(nil)

// Option is a functional option for Notifier
type Option func(*Notifier)

// WithChannel overrides the webhook's default channel
func WithChannel(channel string) Option {
	return func(n *Notifier) {
		n.channel = channel
	}
}

// NewNotifier creates a Notifier for webhookURL
func NewNotifier(webhookURL string, opts ...Option) *Notifier {
	n := &Notifier{webhookURL: webhookURL}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify posts message as plain text
func (n *Notifier) Notify(ctx context.Context, message string) error {
	msg := &slack.WebhookMessage{
		Text:    message,
		Channel: n.channel,
	}
	if err := slack.PostWebhookContext(ctx, n.webhookURL, msg); err != nil {
		return goerr.Wrap(err, "failed to post Slack webhook")
	}
	return nil
}
