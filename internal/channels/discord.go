package channels

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

// Discord is a discordgo-backed adapter: one AddHandler call-through to
// Run, same shape as Telegram's.
type Discord struct {
	Token   string
	AgentID string
	Run     Runner
	Logger  *slog.Logger

	session *discordgo.Session
}

func (d *Discord) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Send implements message.Sender for proactive posts to a Discord channel id.
func (d *Discord) Send(_ context.Context, target, text string) (string, error) {
	session, err := d.ensureSession()
	if err != nil {
		return "", err
	}
	msg, err := session.ChannelMessageSend(target, text)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (d *Discord) ensureSession() (*discordgo.Session, error) {
	if d.session != nil {
		return d.session, nil
	}
	session, err := discordgo.New("Bot " + d.Token)
	if err != nil {
		return nil, err
	}
	d.session = session
	return session, nil
}

// Start opens the gateway connection and blocks until ctx is cancelled.
func (d *Discord) Start(ctx context.Context) error {
	session, err := d.ensureSession()
	if err != nil {
		return err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages
	session.AddHandler(d.handleMessageCreate)
	if err := session.Open(); err != nil {
		return err
	}
	defer session.Close()
	<-ctx.Done()
	return nil
}

func (d *Discord) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Content == "" {
		return
	}
	reply, err := d.Run(context.Background(), d.AgentID, m.Content, "discord", m.Author.ID)
	if err != nil {
		d.logger().Error("discord: run failed", "error", err)
		return
	}
	if reply == "" {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		d.logger().Error("discord: send failed", "error", err)
	}
}
