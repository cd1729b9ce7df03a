package notify

import (
	"context"
	"net/http"
)

// DiscordSender posts to a channel webhook.
type DiscordSender struct {
	webhookURL string
	username   string
	client     *http.Client
}

type discordMessage struct {
	Username        string          `json:"username"`
	Content         string          `json:"content"`
	AllowedMentions discordMentions `json:"allowed_mentions"`
}

type discordMentions struct {
	Parse []string `json:"parse"`
}

// NewDiscordSender creates a DiscordSender posting as username, or as
// "predictiond" when username is empty.
func NewDiscordSender(webhookURL, username string) *DiscordSender {
	if username == "" {
		username = "predictiond"
	}
	return &DiscordSender{webhookURL: webhookURL, username: username, client: newHTTPClient()}
}

// Send posts the title in bold followed by message.
func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	return postJSON(ctx, d.client, "discord", d.webhookURL, discordMessage{
		Username: d.username,
		Content:  "**" + title + "**\n" + message,
		// Descriptions are user supplied; an empty parse list disables pings.
		AllowedMentions: discordMentions{Parse: []string{}},
	})
}

// Name returns "discord".
func (d *DiscordSender) Name() string { return "discord" }
