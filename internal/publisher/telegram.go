package publisher

import (
	"context"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/DevanshuBrahmbhatt/Social-agents/internal/gateway"
	logx "github.com/DevanshuBrahmbhatt/Social-agents/pkg/logx"
)

// Telegram caps photo captions well below our post length.
const telegramCaptionMax = 1024

// Telegram publishes to a channel or chat through the Bot API. When the post
// exceeds the caption limit, the chart goes out as a captioned photo and the
// full text follows as a separate message.
type Telegram struct {
	log logx.Logger
}

func NewTelegram(log logx.Logger) *Telegram {
	return &Telegram{log: log}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Configured(creds gateway.Credentials) bool {
	return creds.Telegram.Complete()
}

func (t *Telegram) Publish(ctx context.Context, creds gateway.Credentials, text string, art Artifact) (string, error) {
	if !creds.Telegram.Complete() {
		return "", gateway.Reject("telegram", "incomplete credentials")
	}

	bot, err := tele.NewBot(tele.Settings{Token: creds.Telegram.BotToken})
	if err != nil {
		return "", gateway.Unavailable("telegram", err)
	}

	chat := tele.ChatID(creds.Telegram.ChatID)

	// The text message is the publication; send it first so its ID is the
	// post ID regardless of what happens to the chart.
	msg, err := send(ctx, func() (*tele.Message, error) {
		return bot.Send(chat, text)
	})
	if err != nil {
		return "", gateway.Unavailable("telegram", err)
	}

	if art.ChartPath != "" {
		caption := art.StoryTitle
		if len([]rune(caption)) > telegramCaptionMax {
			caption = string([]rune(caption)[:telegramCaptionMax])
		}
		photo := &tele.Photo{File: tele.FromDisk(art.ChartPath), Caption: caption}
		if _, err := send(ctx, func() (*tele.Message, error) {
			return bot.Send(chat, photo)
		}); err != nil {
			t.log.Warn("telegram chart send failed", logx.Err(err))
		}
	}

	return strconv.Itoa(msg.ID), nil
}

// send runs a telebot call with ctx deadline semantics; telebot's API does
// not take a context itself.
func send(ctx context.Context, fn func() (*tele.Message, error)) (*tele.Message, error) {
	type result struct {
		msg *tele.Message
		err error
	}
	ch := make(chan result, 1)
	go func() {
		m, err := fn()
		ch <- result{m, err}
	}()

	timer := time.NewTimer(30 * time.Second)
	defer timer.Stop()

	select {
	case r := <-ch:
		return r.msg, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, context.DeadlineExceeded
	}
}
