package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/tradecore/internal/bus"
	"github.com/web3guy0/tradecore/internal/model"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM NOTIFIER - Position and account alerts
// ═══════════════════════════════════════════════════════════════════════════════

// Telegram pushes position lifecycle and account warnings to a chat. It only
// observes bus topics; it never feeds anything back into the engine.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram connects the bot. Returns an error when the token is invalid.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram connect: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("📱 Telegram notifier connected")
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Attach subscribes the notifier to position and account topics. Low
// priority so ledgers and strategies see every event first.
func (t *Telegram) Attach(msgBus *bus.Bus) {
	msgBus.Subscribe("events.position.*", t.onPositionEvent, -10)
	msgBus.Subscribe("events.account.*", t.onAccountEvent, -10)
}

func (t *Telegram) onPositionEvent(msg any) {
	ev, ok := msg.(model.PositionEvent)
	if !ok {
		return
	}
	var text string
	switch ev.Type {
	case model.EventPositionOpened:
		text = fmt.Sprintf("📈 Opened %s %s %s @ %s",
			ev.Side, ev.SignedQty.Abs().String(), ev.InstrumentID, ev.AvgPxOpen.String())
	case model.EventPositionClosed:
		text = fmt.Sprintf("📊 Closed %s PnL %s", ev.InstrumentID, ev.RealizedPnL.String())
	default:
		return
	}
	t.send(text)
}

func (t *Telegram) onAccountEvent(msg any) {
	state, ok := msg.(model.AccountState)
	if !ok {
		return
	}
	for _, b := range state.Balances {
		if b.Free.IsZero() && b.Locked.Equal(b.Total) && b.Total.IsPositive() {
			t.send(fmt.Sprintf("⚠️ %s: %s fully locked (margin exceeded?)", state.AccountID, b.Currency))
		}
	}
}

func (t *Telegram) send(text string) {
	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		log.Warn().Err(err).Msg("telegram send failed")
	}
}
