package notify

import (
	"context"
	"fmt"
	"net/http"
)

// DiscordSender pushes order and position alerts to a Discord channel through
// an incoming webhook.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordSender creates a sender for the given webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: senderTimeout},
	}
}

// Send delivers one alert to the webhook. The event title goes bold on its
// own line, with the order details underneath. Discord answers 204 on
// success and 429 when the webhook is being rate limited.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, map[string]string{
		"content": fmt.Sprintf("**%s**\n%s", title, message),
	})
}

func (d *DiscordSender) Name() string { return "discord" }
