package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"quizgate/internal/app"
	"quizgate/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// PaymentLinks creates a hosted payment page for a user.
type PaymentLinks interface {
	Create(ctx context.Context, userID int64) (string, error)
}

// Bot is the Telegram adapter: it turns updates into engine calls and renders
// engine output as messages with inline keyboards. It is also the engine's
// Notifier, delivering summaries and subscription confirmations.
type Bot struct {
	api      *tgbotapi.BotAPI
	service  *app.QuizService
	payments PaymentLinks
}

func NewBot(token string, service *app.QuizService, payments PaymentLinks) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &Bot{api: api, service: service, payments: payments}, nil
}

// Run consumes the long-polling update stream until the context is canceled.
func (b *Bot) Run(ctx context.Context) error {
	log.Printf("telegram: authorized as %s", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		b.handleCommand(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.sendMenu(chatID)
	case "test":
		b.startTest(ctx, userID, chatID)
	case "subscribe":
		b.subscribe(ctx, userID, chatID)
	case "status":
		b.status(ctx, userID, chatID)
	default:
		b.send(chatID, "Unknown command. Try /test, /subscribe or /status.")
	}
}

func (b *Bot) handleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	chatID := callback.Message.Chat.ID
	userID := callback.From.ID
	data := callback.Data

	ack := ""
	defer func() {
		if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, ack)); err != nil {
			log.Printf("telegram: answer callback: %v", err)
		}
	}()

	switch {
	case data == "start_test":
		b.startTest(ctx, userID, chatID)
	case data == "subscribe":
		b.subscribe(ctx, userID, chatID)
	case data == "status":
		b.status(ctx, userID, chatID)
	case strings.HasPrefix(data, "ans_"):
		ack = b.answer(ctx, userID, chatID, data)
	case strings.HasPrefix(data, "nav_"):
		b.navigate(ctx, userID, chatID, domain.NavCommand(strings.TrimPrefix(data, "nav_")))
	}
}

func (b *Bot) startTest(ctx context.Context, userID, chatID int64) {
	render, err := b.service.StartSession(ctx, userID, chatID)
	switch {
	case errors.Is(err, domain.ErrNotSubscribed):
		b.sendWithKeyboard(chatID, "You need an active subscription to take the test.",
			tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("💳 Subscribe", "subscribe"),
			)))
	case errors.Is(err, domain.ErrNoQuestions):
		b.send(chatID, "No questions are available right now. Please try again later.")
	case err != nil:
		log.Printf("telegram: start session for %d: %v", userID, err)
		b.send(chatID, "Something went wrong, please try again later.")
	default:
		b.sendQuestion(chatID, render)
	}
}

// answer resolves the clicked option back to its label and submits it.
// Returns the callback toast text.
func (b *Bot) answer(ctx context.Context, userID, chatID int64, data string) string {
	parts := strings.Split(data, "_")
	if len(parts) != 3 {
		return ""
	}
	qIdx, err1 := strconv.Atoi(parts[1])
	optIdx, err2 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil {
		return ""
	}

	label, ok := b.service.Option(userID, qIdx, optIdx)
	if !ok {
		b.send(chatID, "No active test. Use /test to start one.")
		return ""
	}

	res, err := b.service.SubmitAnswer(ctx, userID, qIdx, label)
	switch {
	case errors.Is(err, domain.ErrNoActiveSession):
		b.send(chatID, "No active test. Use /test to start one.")
		return ""
	case err != nil:
		log.Printf("telegram: submit answer for %d: %v", userID, err)
		return ""
	case res.TimedOut:
		b.send(chatID, "⏰ Time is up!")
		return ""
	case res.Duplicate:
		return "Already answered"
	default:
		if res.Question != nil {
			b.sendQuestion(chatID, *res.Question)
		}
		return "Recorded"
	}
}

func (b *Bot) navigate(ctx context.Context, userID, chatID int64, cmd domain.NavCommand) {
	res, err := b.service.Navigate(ctx, userID, cmd)
	switch {
	case errors.Is(err, domain.ErrNoActiveSession):
		b.send(chatID, "No active test. Use /test to start one.")
	case err != nil:
		log.Printf("telegram: navigate for %d: %v", userID, err)
	case res.TimedOut:
		b.send(chatID, "⏰ Time is up!")
	case res.Finished:
		// Summary arrives via NotifySummary.
	case res.Question != nil:
		b.sendQuestion(chatID, *res.Question)
	}
}

func (b *Bot) subscribe(ctx context.Context, userID, chatID int64) {
	if b.payments == nil {
		b.send(chatID, "Payments are not configured on this bot.")
		return
	}
	link, err := b.payments.Create(ctx, userID)
	if err != nil {
		log.Printf("telegram: create payment link for %d: %v", userID, err)
		b.send(chatID, "Could not create a payment link, please try again later.")
		return
	}
	b.send(chatID, "Pay here to unlock 28 days of test access:\n"+link)
}

func (b *Bot) status(ctx context.Context, userID, chatID int64) {
	expiry, active := b.service.SubscriptionStatus(ctx, userID)
	if !active {
		b.send(chatID, "No active subscription. Use /subscribe to get access.")
		return
	}
	b.send(chatID, "Subscription active until "+expiry.Format("2 Jan 2006 15:04 MST")+".")
}

// NotifySummary implements app.Notifier.
func (b *Bot) NotifySummary(chatID int64, s domain.Summary) {
	b.sendWithKeyboard(chatID, summaryText(s),
		tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔁 Take again", "start_test"),
		)))
}

// NotifySubscribed implements app.Notifier. Private chat IDs equal user IDs,
// so confirmations reach the user without an active session.
func (b *Bot) NotifySubscribed(userID int64, expiresAt time.Time) {
	b.send(userID, "✅ Payment received! Your access is active until "+expiresAt.Format("2 Jan 2006")+".")
}

func (b *Bot) sendMenu(chatID int64) {
	b.sendWithKeyboard(chatID, "Welcome to the mock test bot!",
		tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("📝 Start test", "start_test"),
				tgbotapi.NewInlineKeyboardButtonData("💳 Subscribe", "subscribe"),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("ℹ️ My status", "status"),
			),
		))
}

func (b *Bot) sendQuestion(chatID int64, q domain.RenderQuestion) {
	b.sendWithKeyboard(chatID, questionText(q), questionKeyboard(q))
}

func (b *Bot) send(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Printf("telegram: send to %d: %v", chatID, err)
	}
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, kb tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = kb
	if _, err := b.api.Send(msg); err != nil {
		log.Printf("telegram: send to %d: %v", chatID, err)
	}
}

func questionText(q domain.RenderQuestion) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "❓ Question %d/%d · ⏱ %d min left\n\n%s", q.Index+1, q.Total, q.MinutesRemaining, q.Prompt)
	if q.Answered {
		fmt.Fprintf(&sb, "\n\nYour answer: %s", q.Chosen)
	}
	return sb.String()
}

func questionKeyboard(q domain.RenderQuestion) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(q.Options)+1)
	for i, option := range q.Options {
		label := option
		if q.Answered && option == q.Chosen {
			label = "✅ " + option
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("ans_%d_%d", q.Index, i)),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⬅️ Prev", "nav_previous"),
		tgbotapi.NewInlineKeyboardButtonData("⏭ Skip", "nav_skip"),
		tgbotapi.NewInlineKeyboardButtonData("➡️ Next", "nav_next"),
		tgbotapi.NewInlineKeyboardButtonData("🏁 Finish", "nav_finish"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func summaryText(s domain.Summary) string {
	return fmt.Sprintf(
		"🏁 Test finished!\n\n📊 Score: %.2f\n✅ Correct: %d\n❌ Wrong: %d\n⬜ Unanswered: %d\n\nQuestions: %d",
		s.FinalScore, s.Correct, s.Wrong, s.Unanswered, s.Total)
}
