// Package botapi publishes status reports and failure alerts through the
// Telegram Bot API. It is used when a bot token is configured, so that the
// channel message is owned by a bot instead of the probing user account.
package botapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/botzhub/botstatus/internal/logger"
	"github.com/botzhub/botstatus/internal/monitor"
	"github.com/botzhub/botstatus/internal/report"
)

// New creates a Bot API client. getMe is skipped so that creating the client
// never touches the network.
func New(token string, log *slog.Logger, opts ...tgbot.Option) (*tgbot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token cannot be empty")
	}
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "bot_api")

	opts = append([]tgbot.Option{tgbot.WithSkipGetMe()}, opts...)
	b, err := tgbot.New(token, opts...)
	if err != nil {
		log.Error("Failed to create Telegram bot instance", "error", err)
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Debug("Telegram bot instance created", "token_prefix", logger.TruncateString(token, 11))
	return b, nil
}

// Reader reads the current status message.
type Reader interface {
	Read(ctx context.Context) (report.Document, error)
}

// Board edits the status message through the Bot API. The Bot API cannot
// fetch a message by id, so reads are delegated to reader.
type Board struct {
	bot       *tgbot.Bot
	reader    Reader
	chatID    int64
	messageID int
}

var _ monitor.Board = (*Board)(nil)

// NewBoard returns a board for messageID in chatID. chatID must be the
// -100 marked channel id.
func NewBoard(b *tgbot.Bot, reader Reader, chatID int64, messageID int) *Board {
	return &Board{bot: b, reader: reader, chatID: chatID, messageID: messageID}
}

// Read returns the current message via the delegated reader.
func (b *Board) Read(ctx context.Context) (report.Document, error) {
	if b.reader == nil {
		return nil, errors.New("bot api cannot read channel messages")
	}
	return b.reader.Read(ctx)
}

// Write replaces the status message with doc rendered as HTML.
func (b *Board) Write(ctx context.Context, doc report.Document) error {
	_, err := b.bot.EditMessageText(ctx, &tgbot.EditMessageTextParams{
		ChatID:    b.chatID,
		MessageID: b.messageID,
		Text:      doc.HTML(),
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		return wrapErr(fmt.Errorf("edit message %d: %w", b.messageID, err))
	}
	return nil
}

// Notifier sends an alert to a chat when a pass finds failing bots.
type Notifier struct {
	bot         *tgbot.Bot
	chatID      int64
	channelName string
	logger      *slog.Logger
}

var _ monitor.Notifier = (*Notifier)(nil)

// NewNotifier returns a notifier posting to chatID.
func NewNotifier(b *tgbot.Bot, chatID int64, channelName string, log *slog.Logger) *Notifier {
	if log == nil {
		log = logger.Discard()
	}
	return &Notifier{bot: b, chatID: chatID, channelName: channelName, logger: log.With("component", "notifier")}
}

// Notify sends the list of failing bots of summary.
func (n *Notifier) Notify(ctx context.Context, summary *monitor.Summary) error {
	failed := summary.Results.Failed()
	handles := make([]string, 0, len(failed))
	for _, r := range failed {
		handles = append(handles, r.Handle)
	}

	doc := report.Alert(n.channelName, handles, len(summary.Results))
	if _, err := n.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    n.chatID,
		Text:      doc.HTML(),
		ParseMode: models.ParseModeHTML,
	}); err != nil {
		return wrapErr(fmt.Errorf("send alert: %w", err))
	}

	n.logger.InfoContext(ctx, "Sent failure alert", "run_id", summary.RunID, "failed", len(handles))
	return nil
}

// wrapErr turns HTTP 429 responses into monitor.FloodWaitError.
func wrapErr(err error) error {
	var tooMany *tgbot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &monitor.FloodWaitError{Wait: time.Duration(tooMany.RetryAfter) * time.Second, Err: err}
	}
	return err
}
