package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"autosearch/models"
	"autosearch/utils"
)

// Telegram sends messages through the Bot API to every configured chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chats  []string
	logger *utils.Logger
}

// NewTelegram creates a Telegram notifier and checks the token with getMe.
// apiURL is normally https://api.telegram.org. A chat is a numeric id or an
// @channel username.
func NewTelegram(apiURL, token string, chatIDs []string, timeout time.Duration, logger *utils.Logger) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram: bot token is not set")
	}
	if len(chatIDs) == 0 {
		return nil, errors.New("telegram: no chat id configured")
	}
	for _, chat := range chatIDs {
		if _, err := newMessage(chat, ""); err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
	}

	endpoint := strings.TrimRight(apiURL, "/") + "/bot%s/%s"
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", scrubURL(err))
	}
	logger.Info("[telegram] Authorized as @%s for %d chat(s)", bot.Self.UserName, len(chatIDs))

	return &Telegram{bot: bot, chats: chatIDs, logger: logger}, nil
}

// Notify sends one message per added listing, then one summary of the
// removed listings.
func (t *Telegram) Notify(ctx context.Context, result *models.ReconcileResult) error {
	var errs []error
	for _, l := range result.Added {
		errs = append(errs, t.broadcast(ctx, FormatListing(l)))
	}
	if len(result.Removed) > 0 {
		errs = append(errs, t.broadcast(ctx, FormatRemoved(result.Search, result.Removed)))
	}
	t.logger.Info("[telegram] %s: sent %d new, %d removed", result.Search, len(result.Added), len(result.Removed))
	return errors.Join(errs...)
}

func (t *Telegram) NotifyError(ctx context.Context, search, summary string) error {
	return t.broadcast(ctx, FormatError(search, summary, time.Now()))
}

// broadcast delivers msg to every chat. A chat that rejects the HTML version
// gets a plain-text copy instead. The bot client has no per-request context,
// so ctx is checked between sends.
func (t *Telegram) broadcast(ctx context.Context, msg string) error {
	var errs []error
	for _, chat := range t.chats {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := t.send(chat, msg, tgbotapi.ModeHTML)
		if err == nil {
			continue
		}
		t.logger.Warn("[telegram] HTML message to %s failed, retrying as plain text: %v", chat, err)
		if err := t.send(chat, PlainText(msg), ""); err != nil {
			errs = append(errs, fmt.Errorf("telegram: chat %s: %w", chat, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telegram) send(chat, text, parseMode string) error {
	msg, err := newMessage(chat, text)
	if err != nil {
		return err
	}
	msg.ParseMode = parseMode
	msg.DisableWebPagePreview = true

	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", scrubURL(err))
	}
	return nil
}

func newMessage(chat, text string) (tgbotapi.MessageConfig, error) {
	if strings.HasPrefix(chat, "@") {
		return tgbotapi.NewMessageToChannel(chat, text), nil
	}
	id, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return tgbotapi.MessageConfig{}, fmt.Errorf("invalid chat id %q", chat)
	}
	return tgbotapi.NewMessage(id, text), nil
}

// scrubURL drops the request URL from transport errors, it carries the bot
// token.
func scrubURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}
