package notify

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram is a passive observer pushing trade-relevant events to one
// chat. Broker message chatter does not reach it.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    b,
		chatID: chatID,
	}, nil
}

func (t *Telegram) send(msg string) {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return
	}
	_, _ = t.bot.Send(tgbot.NewMessage(t.chatID, msg))
}

func (t *Telegram) Notify(_ context.Context, ev Event) {
	switch ev.Kind {
	case EventSignalGenerated:
		t.send(fmt.Sprintf("🔔 [%s] signal %s (strategy=%s)", ev.Symbol, ev.Detail, ev.StrategyID))
	case EventTradeExecuted:
		t.send(fmt.Sprintf("✅ [%s] %s (strategy=%s)", ev.Symbol, ev.Detail, ev.StrategyID))
	case EventExecutionFailed:
		msg := fmt.Sprintf("❗️ [%s] execution failed: %s", ev.Symbol, ev.Reason)
		if ev.Err != nil {
			msg += ": " + ev.Err.Error()
		}
		t.send(msg)
	case EventStrategyError:
		t.send(fmt.Sprintf("⚠️ [%s] strategy %s error: %v", ev.Symbol, ev.StrategyID, ev.Err))
	}
}
