// Package telegram delivers the text of posts from one Telegram channel.
package telegram

import (
	"context"
	"errors"
	"sync/atomic"

	"autotrade/internal/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var ErrAlreadySubscribed = errors.New("telegram listener already subscribed")

// Handler receives the text of one accepted message.
type Handler func(ctx context.Context, text string) error

type updateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Listener long-polls the Bot API. Delivery is at least once and may have
// gaps while the process is down.
type Listener struct {
	src        updateSource
	timeout    int
	subscribed atomic.Bool
}

func New(token string, timeoutSeconds int) (*Listener, error) {
	if token == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	return newWithSource(bot, timeoutSeconds), nil
}

func newWithSource(src updateSource, timeoutSeconds int) *Listener {
	return &Listener{src: src, timeout: timeoutSeconds}
}

// Subscribe calls h for every channel post or message from channelID until
// ctx is done. Handler errors are logged and never stop the subscription.
func (l *Listener) Subscribe(ctx context.Context, channelID int64, h Handler) error {
	if !l.subscribed.CompareAndSwap(false, true) {
		return ErrAlreadySubscribed
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = l.timeout
	updates := l.src.GetUpdatesChan(u)
	defer l.src.StopReceivingUpdates()

	logger.Info(ctx, "Listening for channel posts", "channel_id", channelID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			text, accepted := messageText(upd, channelID)
			if !accepted {
				continue
			}
			if err := h(ctx, text); err != nil {
				logger.ErrorWithErr(ctx, "Message handler failed", err,
					"update_id", upd.UpdateID,
					"channel_id", channelID,
				)
			}
		}
	}
}

// messageText extracts the text of a post from channelID. Media posts carry
// their text in the caption.
func messageText(upd tgbotapi.Update, channelID int64) (string, bool) {
	msg := upd.ChannelPost
	if msg == nil {
		msg = upd.Message
	}
	if msg == nil || msg.Chat == nil || msg.Chat.ID != channelID {
		return "", false
	}
	if msg.Text != "" {
		return msg.Text, true
	}
	if msg.Caption != "" {
		return msg.Caption, true
	}
	return "", false
}
