// Package telegram alerts an operations chat about urgent tickets and
// delivers scheduled reports.
package telegram

import (
	"context"
	"fmt"
	"html"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"support-orchestrator/internal/events"
)

const maxMessageLen = 4000

// sender is the part of the Bot API the notifier uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type botSender struct{ api *tgbotapi.BotAPI }

func (s botSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	return s.api.Send(c)
}

type Notifier struct {
	s      sender
	chatID int64
}

func NewNotifier(token string, chatID int64) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	log.Printf("🤖 Telegram notifier authorized as @%s", api.Self.UserName)
	return &Notifier{s: botSender{api: api}, chatID: chatID}, nil
}

func (n *Notifier) Name() string { return "telegram" }

// Publish alerts only on high and critical urgency tickets.
func (n *Notifier) Publish(_ context.Context, ev events.TicketEvent) error {
	if !ev.Escalated() {
		return nil
	}
	msg := tgbotapi.NewMessage(n.chatID, formatEscalation(ev))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := n.s.Send(msg); err != nil {
		return fmt.Errorf("send escalation for %s: %w", ev.TicketID, err)
	}
	return nil
}

// SendReport posts plain text, cut to the message size limit.
func (n *Notifier) SendReport(_ context.Context, text string) error {
	msg := tgbotapi.NewMessage(n.chatID, truncate(text, maxMessageLen))
	if _, err := n.s.Send(msg); err != nil {
		return fmt.Errorf("send report: %w", err)
	}
	return nil
}

func formatEscalation(ev events.TicketEvent) string {
	var b strings.Builder
	icon := "🟠"
	if ev.Urgency == "critical" {
		icon = "🔴"
	}
	fmt.Fprintf(&b, "%s <b>%s ticket</b> from %s\n", icon, html.EscapeString(strings.ToUpper(ev.Urgency)), html.EscapeString(ev.CustomerEmail))
	fmt.Fprintf(&b, "Category: %s, sentiment: %s\n", html.EscapeString(ev.Category), html.EscapeString(ev.Sentiment))
	if ev.Subject != "" {
		fmt.Fprintf(&b, "Subject: %s\n", html.EscapeString(ev.Subject))
	}
	fmt.Fprintf(&b, "\n<i>%s</i>\n", html.EscapeString(truncate(ev.Message, 500)))
	if len(ev.SuggestedActions) > 0 {
		b.WriteString("\nSuggested actions:\n")
		for _, a := range ev.SuggestedActions {
			fmt.Fprintf(&b, "• %s\n", html.EscapeString(a))
		}
	}
	fmt.Fprintf(&b, "\nTicket: <code>%s</code>", html.EscapeString(ev.TicketID))
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
