package app

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/botzhub/botstatus/internal/botapi"
	"github.com/botzhub/botstatus/internal/config"
	"github.com/botzhub/botstatus/internal/monitor"
	"github.com/botzhub/botstatus/internal/report"
)

type stubMessenger struct{}

func (stubMessenger) SendText(_ context.Context, _, text string) (monitor.Message, error) {
	return monitor.Message{ID: 1, Text: text}, nil
}

func (stubMessenger) LatestMessage(context.Context, string) (monitor.Message, bool, error) {
	return monitor.Message{ID: 2, Text: "Hello!"}, true, nil
}

func (stubMessenger) MarkRead(context.Context, string) error { return nil }

type stubBoard struct {
	mu       sync.Mutex
	writes   int
	writeErr error
}

func (b *stubBoard) Read(context.Context) (report.Document, error) {
	return report.Document{{Text: "previous"}}, nil
}

func (b *stubBoard) Write(context.Context, report.Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes++
	return b.writeErr
}

func testConfig() *config.Config {
	return &config.Config{
		AppID:       1,
		APIHash:     "hash",
		Session:     "session",
		Bots:        []string{"alpha", "beta"},
		ChannelID:   1234,
		MessageID:   5,
		ChannelName: "@BotzHub",
		TimeZone:    "UTC",
		Trigger:     "/start",
		ReplyMatch:  config.MatchContent,
		UpdateEvery: "2 hours",
		Schedule:    "0 0 1 1 *",
		Location:    time.UTC,
	}
}

func dialWith(board monitor.Board) Dialer {
	return func(ctx context.Context, fn SessionFunc) error {
		return fn(ctx, stubMessenger{}, board)
	}
}

func TestRunOnce(t *testing.T) {
	t.Parallel()

	board := &stubBoard{}
	a := New(testConfig(), nil, WithDialer(dialWith(board)))

	if code := a.RunOnce(context.Background()); code != 0 {
		t.Fatalf("RunOnce() = %d, want 0", code)
	}
	if board.writes != 2 {
		t.Errorf("board writes = %d, want 2", board.writes)
	}

	s := a.Latest()
	if s == nil {
		t.Fatal("Latest() = nil after a pass")
	}
	if len(s.Results) != 2 || len(s.Results.Failed()) != 0 {
		t.Errorf("unexpected results: %+v", s.Results)
	}
}

func TestRunOnceConnectionFailure(t *testing.T) {
	t.Parallel()

	a := New(testConfig(), nil, WithDialer(func(context.Context, SessionFunc) error {
		return errors.New("session is not authorized")
	}))

	if code := a.RunOnce(context.Background()); code != 1 {
		t.Errorf("RunOnce() = %d, want 1", code)
	}
	if a.Latest() != nil {
		t.Error("Latest() should stay nil when no pass ran")
	}
}

// unreachableSession is a Telethon string session whose datacenter address
// is 127.0.0.1:1, where nothing listens.
func unreachableSession() string {
	data := []byte{2, 127, 0, 0, 1, 0, 1}
	key := make([]byte, 256)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return "1" + base64.URLEncoding.EncodeToString(append(data, key...))
}

func TestRunOnceUnreachableTelegram(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Session = unreachableSession()
	cfg.ConnectTimeout = 500 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if code := New(cfg, nil).RunOnce(ctx); code != 1 {
		t.Errorf("RunOnce() = %d, want 1", code)
	}
	if elapsed := time.Since(start); elapsed > 15*time.Second {
		t.Errorf("RunOnce() returned after %v", elapsed)
	}
	if ctx.Err() != nil {
		t.Error("RunOnce() only returned because the test deadline passed")
	}
}

func TestRunOnceEditFailureExitsZero(t *testing.T) {
	t.Parallel()

	board := &stubBoard{writeErr: errors.New("MESSAGE_ID_INVALID")}
	a := New(testConfig(), nil, WithDialer(dialWith(board)))

	if code := a.RunOnce(context.Background()); code != 0 {
		t.Errorf("RunOnce() = %d, want 0", code)
	}
	if s := a.Latest(); s == nil || s.Published {
		t.Errorf("Latest() = %+v, want an unpublished summary", s)
	}
}

func TestPublishers(t *testing.T) {
	t.Parallel()

	user := &stubBoard{}

	t.Run("user account", func(t *testing.T) {
		t.Parallel()
		board, opts, err := New(testConfig(), nil).publishers(user)
		if err != nil {
			t.Fatal(err)
		}
		if board != user || len(opts) != 0 {
			t.Errorf("publishers() = %T, %d options", board, len(opts))
		}
	})

	t.Run("bot token with alerts", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig()
		cfg.BotToken = "123456:TEST"
		cfg.AlertChatID = 42

		board, opts, err := New(cfg, nil).publishers(user)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := board.(*botapi.Board); !ok {
			t.Errorf("board = %T, want *botapi.Board", board)
		}
		if len(opts) != 1 {
			t.Errorf("got %d options, want notifier", len(opts))
		}
	})
}

func TestWatchRunsFirstPassImmediately(t *testing.T) {
	t.Parallel()

	board := &stubBoard{}
	a := New(testConfig(), nil, WithDialer(dialWith(board)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Watch(ctx) }()

	deadline := time.After(5 * time.Second)
	for a.Latest() == nil {
		select {
		case <-deadline:
			cancel()
			t.Fatal("no pass ran after watch started")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch() did not return after cancel")
	}
}

func TestWatchRejectsInvalidSchedule(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Schedule = "every now and then"
	if err := New(cfg, nil, WithDialer(dialWith(&stubBoard{}))).Watch(context.Background()); err == nil {
		t.Error("expected error for invalid schedule")
	}
}
