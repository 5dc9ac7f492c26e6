package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/botzhub/botstatus/internal/config"
	"github.com/botzhub/botstatus/internal/logger"
	"github.com/botzhub/botstatus/internal/report"
)

// Checker runs probe-and-report passes.
type Checker struct {
	cfg       *config.Config
	messenger Messenger
	board     Board
	notifier  Notifier
	logger    *slog.Logger

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	newRunID func() string
}

// Option customises a Checker.
type Option func(*Checker)

// WithNotifier sets the notifier used for passes with failing bots.
func WithNotifier(n Notifier) Option {
	return func(c *Checker) { c.notifier = n }
}

// WithClock replaces the wall clock and the sleep function.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Checker) {
		if now != nil {
			c.now = now
		}
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// WithRunID replaces the run id generator.
func WithRunID(gen func() string) Option {
	return func(c *Checker) { c.newRunID = gen }
}

// NewChecker creates a Checker for the bots listed in cfg.
func NewChecker(cfg *config.Config, messenger Messenger, board Board, log *slog.Logger, opts ...Option) *Checker {
	if log == nil {
		log = logger.Discard()
	}
	c := &Checker{
		cfg:       cfg,
		messenger: messenger,
		board:     board,
		logger:    log.With("component", "checker"),
		now:       time.Now,
		sleep:     sleepContext,
		newRunID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs one pass over every configured bot and publishes the report.
// Failures to read or edit the status message are logged and do not make
// Run fail; only context cancellation is returned as an error.
func (c *Checker) Run(ctx context.Context) (*Summary, error) {
	summary := &Summary{RunID: c.newRunID(), StartedAt: c.now()}
	log := c.logger.With("run_id", summary.RunID)

	log.InfoContext(ctx, "Started periodic checks", "bots", len(c.cfg.Bots))
	summary.Announced = c.announce(ctx, log)

	summary.Results = make(Results, 0, len(c.cfg.Bots))
	for _, handle := range c.cfg.Bots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, recorded, err := c.probe(ctx, log, handle)
		if err != nil {
			return nil, err
		}

		if err := c.messenger.MarkRead(ctx, handle); err != nil {
			log.WarnContext(ctx, "Failed to mark conversation as read", "bot", handle, "error", err)
		}

		if !recorded {
			summary.Skipped = append(summary.Skipped, handle)
			log.InfoContext(ctx, "Skipped bot", "bot", handle)
			continue
		}
		summary.Results = append(summary.Results, res)
		log.InfoContext(ctx, "Checked bot", "bot", handle, "status", report.StatusGlyph(res.OK()))
	}

	summary.Elapsed = c.now().Sub(summary.StartedAt)
	summary.CheckedAt = c.now().In(c.location())
	log.InfoContext(ctx, "Completed periodic checks",
		"duration", summary.Elapsed,
		"failed", len(summary.Results.Failed()),
		"skipped", len(summary.Skipped))

	summary.Report = report.Build(report.Input{
		ChannelName: c.cfg.ChannelName,
		Entries:     summary.Results.Entries(),
		Elapsed:     summary.Elapsed,
		CheckedAt:   summary.CheckedAt,
		Location:    c.location(),
		TimeZone:    c.cfg.TimeZone,
		UpdateEvery: c.cfg.UpdateEvery,
	})
	summary.Text = summary.Report.Text()

	if err := c.board.Write(ctx, summary.Report); err != nil {
		log.WarnContext(ctx, "Unable to edit message in the channel", "stage", "publish", "error", err)
	} else {
		summary.Published = true
		log.InfoContext(ctx, "Published status report")
	}

	c.notify(ctx, log, summary)
	return summary, nil
}

func (c *Checker) announce(ctx context.Context, log *slog.Logger) bool {
	previous, err := c.board.Read(ctx)
	if err != nil {
		log.WarnContext(ctx, "Unable to read message in the channel", "error", err)
		previous = nil
	}

	if err := c.board.Write(ctx, report.Announce(c.cfg.ChannelName, previous)); err != nil {
		log.WarnContext(ctx, "Unable to edit message in the channel", "stage", "announce", "error", err)
		return false
	}
	return true
}

// probe checks a single bot. recorded is false when the bot was skipped
// because of a flood wait. The returned error is only ever a context error.
func (c *Checker) probe(ctx context.Context, log *slog.Logger, handle string) (res Result, recorded bool, err error) {
	start := c.now()

	res, probeErr := c.exchange(ctx, handle, start)
	if probeErr == nil {
		return res, true, nil
	}

	if wait, ok := AsFloodWait(probeErr); ok {
		log.WarnContext(ctx, "Flood wait while probing bot", "bot", handle, "wait", wait)
		if err := c.sleep(ctx, wait); err != nil {
			return Result{}, false, err
		}
		return Result{}, false, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return Result{}, false, ctxErr
	}

	log.ErrorContext(ctx, "Failed to probe bot", "bot", handle, "error", probeErr)
	return Result{Handle: handle, Status: StatusFailure, Error: probeErr.Error()}, true, nil
}

func (c *Checker) exchange(ctx context.Context, handle string, start time.Time) (Result, error) {
	sent, err := c.messenger.SendText(ctx, handle, c.cfg.Trigger)
	if err != nil {
		return Result{}, fmt.Errorf("send trigger: %w", err)
	}
	if sent.Text == "" {
		sent.Text = c.cfg.Trigger
	}

	if err := c.sleep(ctx, c.cfg.ReplyWait); err != nil {
		return Result{}, err
	}

	latest, found, err := c.messenger.LatestMessage(ctx, handle)
	if err != nil {
		return Result{}, fmt.Errorf("fetch history: %w", err)
	}
	fetched := c.now()

	if !found || c.unanswered(sent, latest) {
		return Result{Handle: handle, Status: StatusFailure}, nil
	}

	rt := roundMillis(fetched.Sub(start))
	return Result{Handle: handle, Status: StatusSuccess, ResponseTime: &rt}, nil
}

// unanswered reports whether latest is still the trigger that was sent.
func (c *Checker) unanswered(sent, latest Message) bool {
	if c.cfg.ReplyMatch == config.MatchID {
		return sent.ID == latest.ID
	}
	return sent.Text == latest.Text
}

func (c *Checker) notify(ctx context.Context, log *slog.Logger, summary *Summary) {
	if c.notifier == nil || len(summary.Results.Failed()) == 0 {
		return
	}
	if err := c.notifier.Notify(ctx, summary); err != nil {
		log.WarnContext(ctx, "Failed to send failure alert", "error", err)
	}
}

func (c *Checker) location() *time.Location {
	if c.cfg.Location != nil {
		return c.cfg.Location
	}
	return time.UTC
}

// roundMillis converts d to milliseconds rounded to three decimals.
func roundMillis(d time.Duration) float64 {
	ms := float64(d) / float64(time.Millisecond)
	return math.Round(ms*1000) / 1000
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
