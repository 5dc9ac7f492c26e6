// Package app wires configuration, the Telegram connection and the
// publishers into status passes, either once or on a schedule.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/botzhub/botstatus/internal/botapi"
	"github.com/botzhub/botstatus/internal/config"
	"github.com/botzhub/botstatus/internal/logger"
	"github.com/botzhub/botstatus/internal/monitor"
	"github.com/botzhub/botstatus/internal/scheduler"
	"github.com/botzhub/botstatus/internal/status"
	"github.com/botzhub/botstatus/internal/store"
	"github.com/botzhub/botstatus/internal/telegram"
)

// SessionFunc runs with a connected messenger and the status message board
// of that connection.
type SessionFunc func(ctx context.Context, m monitor.Messenger, b monitor.Board) error

// Dialer opens a connection for the duration of fn.
type Dialer func(ctx context.Context, fn SessionFunc) error

// App runs status passes.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	dial   Dialer
	holder *status.Holder
}

// Option configures an App.
type Option func(*App)

// WithDialer replaces the MTProto connection.
func WithDialer(d Dialer) Option {
	return func(a *App) { a.dial = d }
}

// New returns an App for cfg.
func New(cfg *config.Config, log *slog.Logger, opts ...Option) *App {
	if log == nil {
		log = logger.Discard()
	}
	a := &App{
		cfg:    cfg,
		logger: log,
		holder: &status.Holder{},
	}
	a.dial = a.dialTelegram
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Latest returns the summary of the most recent pass, or nil.
func (a *App) Latest() *monitor.Summary { return a.holder.Get() }

// Pass opens a connection and performs one status pass.
func (a *App) Pass(ctx context.Context) (*monitor.Summary, error) {
	var summary *monitor.Summary
	err := a.dial(ctx, func(ctx context.Context, m monitor.Messenger, b monitor.Board) error {
		board, opts, err := a.publishers(b)
		if err != nil {
			return err
		}
		summary, err = monitor.NewChecker(a.cfg, m, board, a.logger, opts...).Run(ctx)
		return err
	})
	if summary != nil {
		a.holder.Set(summary)
	}
	return summary, err
}

// RunOnce performs a single pass and returns the process exit code.
func (a *App) RunOnce(ctx context.Context) int {
	if _, err := a.Pass(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			a.logger.Info("Pass interrupted")
			return 0
		}
		a.logger.Error("Status pass failed", "error", err)
		return 1
	}
	return 0
}

// Watch runs a pass on the configured schedule and, when an address is
// configured, serves the latest summary over HTTP. It blocks until ctx is
// done.
func (a *App) Watch(ctx context.Context) error {
	sched, err := scheduler.New(a.cfg.Location, a.logger)
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	if err := sched.Add(gCtx, "status_pass", a.cfg.Schedule, func(ctx context.Context) error {
		_, err := a.Pass(ctx)
		return err
	}); err != nil {
		return err
	}

	g.Go(func() error {
		return sched.Run(gCtx)
	})

	if a.cfg.ListenAddr != "" {
		srv := status.NewServer(a.cfg.ListenAddr, a.holder, a.logger)
		g.Go(func() error {
			return srv.Run(gCtx)
		})
	}

	return g.Wait()
}

// publishers returns the board the report is written to and the checker
// options for alerts. With a bot token the report is edited by that bot and
// the user board only serves reads.
func (a *App) publishers(user monitor.Board) (monitor.Board, []monitor.Option, error) {
	if a.cfg.BotToken == "" {
		return user, nil, nil
	}

	b, err := botapi.New(a.cfg.BotToken, a.logger)
	if err != nil {
		return nil, nil, err
	}
	board := botapi.NewBoard(b, user, telegram.MarkedChannelID(a.cfg.ChannelID), a.cfg.MessageID)

	var opts []monitor.Option
	if a.cfg.AlertChatID != 0 {
		opts = append(opts, monitor.WithNotifier(botapi.NewNotifier(b, a.cfg.AlertChatID, a.cfg.ChannelName, a.logger)))
	}
	return board, opts, nil
}

// dialTelegram connects with the configured user session. When a session
// database is configured the MTProto session is persisted there between
// passes.
func (a *App) dialTelegram(ctx context.Context, fn SessionFunc) error {
	opts := telegram.Options{
		AppID:   a.cfg.AppID,
		APIHash: a.cfg.APIHash,
		Session: a.cfg.Session,

		ConnectTimeout: a.cfg.ConnectTimeout,
	}

	if a.cfg.SessionDB != "" {
		db, err := store.Open(a.cfg.SessionDB)
		if err != nil {
			return fmt.Errorf("failed to open session database: %w", err)
		}
		defer store.Close(db)
		opts.Storage = store.NewSessionStore(db, store.SessionName(a.cfg.Session), a.logger)
	}

	return telegram.Connect(ctx, opts, a.logger, func(ctx context.Context, c *telegram.Client) error {
		return fn(ctx, c, c.Board(a.cfg.ChannelID, a.cfg.MessageID))
	})
}
