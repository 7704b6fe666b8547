package notifier

import (
	"context"
	"fmt"

	goslack "github.com/slack-go/slack"
)

// ChatTransport posts failure events to an MS Teams-style incoming webhook
// or, when configured with a bot token, a Slack channel. The webhook path
// serves "ms-teams" routes; both destinations speak the same JSON payload
// shape.
type ChatTransport struct {
	webhookURL string
	client     *goslack.Client
	channelID  string
}

// NewWebhookChatTransport posts to an incoming webhook URL (ms-teams or a
// Slack incoming webhook — both speak the same JSON payload shape).
func NewWebhookChatTransport(webhookURL string) *ChatTransport {
	return &ChatTransport{webhookURL: webhookURL}
}

// NewSlackChatTransport posts to a Slack channel via a bot token.
func NewSlackChatTransport(botToken, channelID string) *ChatTransport {
	return &ChatTransport{client: goslack.New(botToken), channelID: channelID}
}

func (t *ChatTransport) Send(ctx context.Context, route Route, event Event) error {
	if route.Teams == "" {
		return nil // chat sink not configured for this route
	}

	text := fmt.Sprintf("[%s/%s] %s: %s", event.Tenant, event.Family, event.Subject, event.Message)

	if t.client != nil {
		_, _, err := t.client.PostMessageContext(ctx, t.channelID, goslack.MsgOptionText(text, false))
		return err
	}

	if t.webhookURL != "" {
		return goslack.PostWebhookContext(ctx, t.webhookURL, &goslack.WebhookMessage{Text: text})
	}
	return nil
}

var _ Transport = (*ChatTransport)(nil)
