package notify

import (
	"context"
	"fmt"
)

// DiscordSender posts to a Discord webhook.
type DiscordSender struct {
	webhookURL string
}

// NewDiscordSender creates a DiscordSender for webhookURL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{webhookURL: webhookURL}
}

// Send posts the title in bold followed by the message.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, defaultClient, d.Name(), d.webhookURL, map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	})
}

func (d *DiscordSender) Name() string { return "discord" }
