package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"CoinTrend/internal/domain/models"
	"CoinTrend/pkg/logger"
)

// TelegramSender is satisfied by *tgbotapi.BotAPI.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier messages subscribers that linked a Telegram chat.
type TelegramNotifier struct {
	token      string
	bot        TelegramSender
	audience   *Audience
	maxRetries int
	retryDelay time.Duration
	log        *logger.Logger
}

// NewTelegramNotifier builds a notifier that connects with token on Start.
func NewTelegramNotifier(token string, audience *Audience, maxRetries int, retryDelay time.Duration, log *logger.Logger) *TelegramNotifier {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &TelegramNotifier{
		token:      token,
		audience:   audience,
		maxRetries: maxRetries,
		retryDelay: retryDelay,
		log:        log,
	}
}

// WithSender replaces the bot client, mostly for tests.
func (n *TelegramNotifier) WithSender(s TelegramSender) *TelegramNotifier {
	n.bot = s
	return n
}

func (n *TelegramNotifier) Name() string { return "telegram" }

func (n *TelegramNotifier) Start(context.Context) error {
	if n.bot != nil {
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(n.token)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	n.bot = bot
	n.log.Info("telegram bot connected", logger.String("bot", bot.Self.UserName))
	return nil
}

func (n *TelegramNotifier) Notify(ctx context.Context, e *models.SymbolEvent) error {
	users, err := n.audience.Resolve(ctx, n.Name(), e)
	if err != nil {
		return err
	}
	msg := NewMessage(e)

	var errs []error
	for _, u := range users {
		if u.TelegramChatID == 0 {
			continue
		}
		text := msg.Title() + "\n" + msg.Greeting(u.Username)
		if err := n.send(ctx, u.TelegramChatID, text); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", u.ID, err))
			continue
		}
		n.audience.Delivered(ctx, u)
	}
	return errors.Join(errs...)
}

// send retries with a linear backoff.
func (n *TelegramNotifier) send(ctx context.Context, chatID int64, text string) error {
	m := tgbotapi.NewMessage(chatID, text)
	var lastErr error
	for i := 0; i < n.maxRetries; i++ {
		if _, err := n.bot.Send(m); err == nil {
			return nil
		} else {
			lastErr = err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(n.retryDelay * time.Duration(i+1)):
		}
	}
	return fmt.Errorf("failed after %d retries: %w", n.maxRetries, lastErr)
}
