// Package telegram talks to Telegram as a user account over MTProto. It is
// the backend behind the monitor: it sends probes to bots, reads their
// conversations and edits the channel status message.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gotd/td/session"
	tdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/botzhub/botstatus/internal/logger"
	"github.com/botzhub/botstatus/internal/monitor"
)

var (
	// ErrUnauthorized is returned by Connect when the session is not logged in.
	ErrUnauthorized = errors.New("session is not authorized")
	// ErrChannelNotFound is returned when the status channel cannot be resolved.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrMessageNotFound is returned when the status message does not exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrConnectTimeout is returned by Connect when the connection is not
	// ready and authorized within Options.ConnectTimeout.
	ErrConnectTimeout = errors.New("timed out connecting to telegram")
)

// DefaultConnectTimeout is used when Options.ConnectTimeout is not set.
const DefaultConnectTimeout = time.Minute

// Options configure a connection.
type Options struct {
	AppID   int
	APIHash string
	// Session is a Telethon string session used to seed Storage.
	Session string
	// Storage persists the MTProto session. Nil keeps it in memory.
	Storage session.Storage
	// ConnectTimeout bounds the time until the connection is ready and
	// authorized. The client keeps reconnecting until then.
	ConnectTimeout time.Duration
}

// Client is a connected user-account client. It is only valid inside the
// callback given to Connect.
type Client struct {
	api    *tg.Client
	sender *message.Sender
	logger *slog.Logger

	peers    map[string]tg.InputPeerClass
	channels map[int64]*tg.InputChannel
}

var _ monitor.Messenger = (*Client)(nil)

// Connect opens an MTProto connection, verifies the session is authorized
// and runs fn with the connected client. The connection is closed when fn
// returns. If the session is not authorized within opts.ConnectTimeout,
// Connect returns ErrConnectTimeout; fn itself is not bounded.
func Connect(ctx context.Context, opts Options, log *slog.Logger, fn func(ctx context.Context, c *Client) error) error {
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "telegram")

	storage, err := prepareStorage(ctx, opts)
	if err != nil {
		return err
	}

	client := tdtelegram.NewClient(opts.AppID, opts.APIHash, tdtelegram.Options{
		SessionStorage: storage,
		NoUpdates:      true,
	})

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	timer := time.AfterFunc(timeout, func() { cancel(ErrConnectTimeout) })
	defer timer.Stop()

	log.Info("Connecting to Telegram", "timeout", timeout)
	err = client.Run(runCtx, func(ctx context.Context) error {
		status, err := client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to check authorization: %w", err)
		}
		if !status.Authorized {
			return ErrUnauthorized
		}
		if !timer.Stop() {
			return context.Cause(runCtx)
		}
		if status.User != nil {
			log.Info("Connected to Telegram", "user_id", status.User.ID, "username", status.User.Username)
		}

		return fn(ctx, newClient(client.API(), log))
	})
	if errors.Is(context.Cause(runCtx), ErrConnectTimeout) {
		log.Error("Telegram connection was not ready in time", "timeout", timeout, "error", err)
		return fmt.Errorf("%w after %s", ErrConnectTimeout, timeout)
	}
	return err
}

func newClient(api *tg.Client, log *slog.Logger) *Client {
	return &Client{
		api:      api,
		sender:   message.NewSender(api),
		logger:   log,
		peers:    make(map[string]tg.InputPeerClass),
		channels: make(map[int64]*tg.InputChannel),
	}
}

// prepareStorage seeds storage from the string session unless it already
// holds a session from an earlier run.
func prepareStorage(ctx context.Context, opts Options) (session.Storage, error) {
	storage := opts.Storage
	if storage == nil {
		storage = new(session.StorageMemory)
	}

	if _, err := storage.LoadSession(ctx); err == nil {
		return storage, nil
	} else if !errors.Is(err, session.ErrNotFound) {
		return nil, fmt.Errorf("failed to load stored session: %w", err)
	}

	data, err := session.TelethonSession(opts.Session)
	if err != nil {
		return nil, fmt.Errorf("failed to decode string session: %w", err)
	}
	loader := session.Loader{Storage: storage}
	if err := loader.Save(ctx, data); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}
	return storage, nil
}

// SendText sends text to the bot addressed by handle.
func (c *Client) SendText(ctx context.Context, handle, text string) (monitor.Message, error) {
	peer, err := c.resolve(ctx, handle)
	if err != nil {
		return monitor.Message{}, err
	}

	upd, err := c.sender.To(peer).Text(ctx, text)
	if err != nil {
		return monitor.Message{}, wrapRPC(fmt.Errorf("send to @%s: %w", handle, err))
	}

	return monitor.Message{ID: sentMessageID(upd), Text: text}, nil
}

// LatestMessage returns the newest message of the conversation with handle.
func (c *Client) LatestMessage(ctx context.Context, handle string) (monitor.Message, bool, error) {
	peer, err := c.resolve(ctx, handle)
	if err != nil {
		return monitor.Message{}, false, err
	}

	res, err := c.api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  peer,
		Limit: 1,
	})
	if err != nil {
		return monitor.Message{}, false, wrapRPC(fmt.Errorf("history of @%s: %w", handle, err))
	}

	msgs := messagesOf(res)
	if len(msgs) == 0 {
		return monitor.Message{}, false, nil
	}
	return toMessage(msgs[0]), true, nil
}

// MarkRead marks the conversation with handle as read.
func (c *Client) MarkRead(ctx context.Context, handle string) error {
	peer, err := c.resolve(ctx, handle)
	if err != nil {
		return err
	}

	if _, err := c.api.MessagesReadHistory(ctx, &tg.MessagesReadHistoryRequest{Peer: peer}); err != nil {
		return wrapRPC(fmt.Errorf("read history of @%s: %w", handle, err))
	}
	return nil
}

// resolve maps a bot handle to an input peer, caching the answer for the
// lifetime of the connection.
func (c *Client) resolve(ctx context.Context, handle string) (tg.InputPeerClass, error) {
	if peer, ok := c.peers[handle]; ok {
		return peer, nil
	}

	peer, err := c.sender.Resolve(handle).AsInputPeer(ctx)
	if err != nil {
		return nil, wrapRPC(fmt.Errorf("resolve @%s: %w", handle, err))
	}

	c.peers[handle] = peer
	c.logger.Debug("Resolved bot handle", "bot", handle)
	return peer, nil
}

// wrapRPC turns FLOOD_WAIT errors into monitor.FloodWaitError.
func wrapRPC(err error) error {
	if err == nil {
		return nil
	}
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return &monitor.FloodWaitError{Wait: wait, Err: err}
	}
	return err
}

// sentMessageID extracts the id of a message we just sent.
func sentMessageID(upd tg.UpdatesClass) int {
	switch u := upd.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		return idFromUpdates(u.Updates)
	case *tg.UpdatesCombined:
		return idFromUpdates(u.Updates)
	default:
		return 0
	}
}

func idFromUpdates(updates []tg.UpdateClass) int {
	for _, upd := range updates {
		switch u := upd.(type) {
		case *tg.UpdateMessageID:
			return u.ID
		case *tg.UpdateNewMessage:
			return u.Message.GetID()
		}
	}
	return 0
}

// messagesOf returns the message list of any messages.Messages variant.
func messagesOf(res tg.MessagesMessagesClass) []tg.MessageClass {
	switch m := res.(type) {
	case *tg.MessagesMessages:
		return m.Messages
	case *tg.MessagesMessagesSlice:
		return m.Messages
	case *tg.MessagesChannelMessages:
		return m.Messages
	default:
		return nil
	}
}

func toMessage(m tg.MessageClass) monitor.Message {
	msg := monitor.Message{ID: m.GetID()}
	if full, ok := m.(*tg.Message); ok {
		msg.Text = full.Message
	}
	return msg
}
