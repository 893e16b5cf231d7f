// Package notify routes security-significant gateway events to humans.
// Replay detections are the main customer: an ordinary expiry is noise, a
// replayed token is someone (or something) trying to execute twice on one
// authorization.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	slacklib "github.com/slack-go/slack"
)

// SlackAPI abstracts the subset of the Slack client used here. This allows
// testing without real HTTP calls.
type SlackAPI interface {
	PostMessage(channelID string, options ...slacklib.MsgOption) (string, string, error)
}

// SlackNotifier posts security events to a Slack channel.
type SlackNotifier struct {
	api     SlackAPI
	channel string
}

// NewSlackNotifier creates a notifier posting to the given channel.
func NewSlackNotifier(api SlackAPI, channel string) *SlackNotifier {
	return &SlackNotifier{api: api, channel: channel}
}

// NotifySecurityEvent posts the event to Slack. Delivery is best effort:
// the enforcement decision is already made and audited, so a failed post is
// logged, never propagated into the authorization path.
func (n *SlackNotifier) NotifySecurityEvent(_ context.Context, event, detail string) {
	text := fmt.Sprintf(":rotating_light: *%s* %s", event, detail)
	if _, _, err := n.api.PostMessage(n.channel, slacklib.MsgOptionText(text, false)); err != nil {
		log.Error().Err(err).Str("event", event).Msg("slack security notification failed")
	}
}

// LogNotifier is the fallback when Slack is not configured: security events
// still land in the structured log at warn level.
type LogNotifier struct{}

func (LogNotifier) NotifySecurityEvent(_ context.Context, event, detail string) {
	log.Warn().Str("event", event).Str("detail", detail).Msg("security event")
}
