package channels

import (
	"context"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// Slack is a socketmode-backed adapter: events API messages are forwarded
// to Run and the reply is posted back to the same channel.
type Slack struct {
	BotToken string
	AppToken string
	AgentID  string
	Run      Runner
	Logger   *slog.Logger

	client *slack.Client
}

func (s *Slack) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Slack) ensureClient() *slack.Client {
	if s.client == nil {
		s.client = slack.New(s.BotToken, slack.OptionAppLevelToken(s.AppToken))
	}
	return s.client
}

// Send implements message.Sender for proactive posts to a Slack channel id.
func (s *Slack) Send(ctx context.Context, target, text string) (string, error) {
	_, timestamp, err := s.ensureClient().PostMessageContext(ctx, target, slack.MsgOptionText(text, false))
	if err != nil {
		return "", err
	}
	return timestamp, nil
}

// Start runs the socketmode event loop until ctx is cancelled.
func (s *Slack) Start(ctx context.Context) error {
	client := s.ensureClient()
	socket := socketmode.New(client)

	go func() {
		for evt := range socket.Events {
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok {
				continue
			}
			socket.Ack(*evt.Request)
			s.handleEvent(eventsAPIEvent)
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- socket.Run() }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Slack) handleEvent(event slackevents.EventsAPIEvent) {
	inner, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok || inner.BotID != "" || inner.Text == "" {
		return
	}
	reply, err := s.Run(context.Background(), s.AgentID, inner.Text, "slack", inner.User)
	if err != nil {
		s.logger().Error("slack: run failed", "error", err)
		return
	}
	if reply == "" {
		return
	}
	if _, _, err := s.ensureClient().PostMessage(inner.Channel, slack.MsgOptionText(reply, false)); err != nil {
		s.logger().Error("slack: send failed", "error", err)
	}
}
