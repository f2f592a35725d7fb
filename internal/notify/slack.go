package notify

import (
	"fmt"

	"github.com/slack-go/slack"

	"github.com/industriq/blackbox/internal/database"
	"github.com/industriq/blackbox/internal/services"
)

var severityEmoji = map[database.Severity]string{
	database.SeverityCritical: ":red_circle:",
	database.SeverityMajor:    ":large_orange_circle:",
	database.SeverityMinor:    ":large_yellow_circle:",
	database.SeverityWarning:  ":large_yellow_circle:",
	database.SeverityInfo:     ":large_blue_circle:",
}

// SlackSink posts pipeline notifications to an operations channel.
type SlackSink struct {
	client  *slack.Client
	channel string
}

func NewSlackSink(token, channel string) *SlackSink {
	return &SlackSink{
		client:  slack.New(token),
		channel: channel,
	}
}

func (s *SlackSink) Send(msg services.NotificationMessage) error {
	emoji, ok := severityEmoji[msg.Severity]
	if !ok {
		emoji = ":white_circle:"
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("%s *%s*", emoji, msg.Title), false, false),
			nil, nil,
		),
	}
	if msg.Body != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, msg.Body, false, false),
			nil, nil,
		))
	}
	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType,
			fmt.Sprintf("%s %s | severity %s", msg.EntityType, msg.EntityID, msg.Severity), false, false),
	))

	_, _, err := s.client.PostMessage(s.channel, slack.MsgOptionBlocks(blocks...))
	if err != nil {
		return fmt.Errorf("posting to slack channel %s: %w", s.channel, err)
	}
	return nil
}
