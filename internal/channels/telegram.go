// Package channels implements the thin, call-through channel pollers for
// Telegram, Discord, and Slack: each platform SDK's own long-polling or
// websocket loop stays untouched, with the handler body replaced by one
// call into the agent runtime's Run entry point and the returned text
// handed straight back to the SDK's send call. Reconnect, rate-limit, and
// attachment handling are left to each SDK; this package only wires the
// single call-through.
package channels

import (
	"context"
	"log/slog"
	"strconv"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// Runner is the agent runtime's top-level entry point, named the same way
// internal/tools/subagent's Runner is, so this package never imports
// internal/agent directly.
type Runner func(ctx context.Context, agentID, userText, channel, sender string) (string, error)

// Telegram is a long-polling Telegram bot adapter that forwards every text
// message to Run and replies with whatever text comes back.
type Telegram struct {
	Token   string
	AgentID string
	Run     Runner
	Logger  *slog.Logger
}

func (t *Telegram) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// Send implements message.Sender so the "message" tool can push proactive
// text to a Telegram chat id outside of a reply.
func (t *Telegram) Send(ctx context.Context, target, text string) (string, error) {
	b, err := tgbot.New(t.Token)
	if err != nil {
		return "", err
	}
	chatID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		chatID = 0
	}
	params := &tgbot.SendMessageParams{Text: text}
	if chatID != 0 {
		params.ChatID = chatID
	} else {
		params.ChatID = target
	}
	msg, err := b.SendMessage(ctx, params)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(msg.ID), nil
}

// Start runs the bot's long-polling loop until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) error {
	b, err := tgbot.New(t.Token, tgbot.WithDefaultHandler(t.handle))
	if err != nil {
		return err
	}
	b.Start(ctx)
	return nil
}

func (t *Telegram) handle(ctx context.Context, b *tgbot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	sender := strconv.FormatInt(update.Message.From.ID, 10)
	chatID := update.Message.Chat.ID

	reply, err := t.Run(ctx, t.AgentID, update.Message.Text, "telegram", sender)
	if err != nil {
		t.logger().Error("telegram: run failed", "error", err)
		return
	}
	if reply == "" {
		return
	}
	if _, err := b.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: chatID, Text: reply}); err != nil {
		t.logger().Error("telegram: send failed", "error", err)
	}
}
