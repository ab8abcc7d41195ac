package notify

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	logx "neuroboost/pkg/logx"
)

// telegramRoute pushes nudges to a private chat. Send-only: the bot
// never polls for updates.
type telegramRoute struct {
	log  logx.Logger
	bot  *tele.Bot
	chat tele.ChatID
}

func newTelegramRoute(cfg TelegramConfig, log logx.Logger) (Route, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat id is not set")
	}
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: false})
	if err != nil {
		return nil, err
	}
	return &telegramRoute{log: log, bot: bot, chat: tele.ChatID(cfg.ChatID)}, nil
}

func (r *telegramRoute) Name() string { return "telegram" }

func (r *telegramRoute) Send(ctx context.Context, n Notification) error {
	// telebot has no context-aware send; honor cancellation up front.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	text := "*" + n.Title + "*\n" + n.Body
	_, err := r.bot.Send(r.chat, text, tele.ModeMarkdown)
	return err
}
