// Package monitor implements the probe-and-report pass: every configured bot
// is sent a trigger command, the conversation is inspected after a fixed
// wait, and the outcome is published into the channel status message.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/botzhub/botstatus/internal/report"
)

// Message is the part of a chat message the checker looks at.
type Message struct {
	ID   int
	Text string
}

// Messenger is the conversation side of the messaging backend.
type Messenger interface {
	// SendText sends text to the bot addressed by handle and returns the
	// sent message.
	SendText(ctx context.Context, handle, text string) (Message, error)
	// LatestMessage returns the most recent message of the conversation
	// with handle. found is false when the history is empty.
	LatestMessage(ctx context.Context, handle string) (msg Message, found bool, err error)
	// MarkRead acknowledges the conversation with handle.
	MarkRead(ctx context.Context, handle string) error
}

// Board is the channel message that carries the status report.
type Board interface {
	// Read returns the current message with its formatting.
	Read(ctx context.Context) (report.Document, error)
	Write(ctx context.Context, doc report.Document) error
}

// Notifier is told about passes that found at least one failing bot.
type Notifier interface {
	Notify(ctx context.Context, summary *Summary) error
}

// FloodWaitError is returned by backends when the caller has to pause
// before issuing further requests.
type FloodWaitError struct {
	Wait time.Duration
	Err  error
}

func (e *FloodWaitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("flood wait %s: %v", e.Wait, e.Err)
	}
	return fmt.Sprintf("flood wait %s", e.Wait)
}

func (e *FloodWaitError) Unwrap() error { return e.Err }

// AsFloodWait reports whether err carries a flood wait and how long it is.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Wait, true
	}
	return 0, false
}

// Status is the outcome of a single probe.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Result is the outcome of probing one bot.
type Result struct {
	Handle string `json:"handle"`
	Status Status `json:"status"`
	// ResponseTime is in milliseconds, rounded to three decimals. It is nil
	// when the bot did not reply or the probe failed.
	ResponseTime *float64 `json:"response_time_ms"`
	// Error is set when the probe itself failed rather than the bot
	// staying silent.
	Error string `json:"error,omitempty"`
}

// OK reports whether the bot replied.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Results keeps one entry per probed list element, in probe order.
type Results []Result

// Get returns the latest result recorded for handle.
func (rs Results) Get(handle string) (Result, bool) {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i].Handle == handle {
			return rs[i], true
		}
	}
	return Result{}, false
}

// Failed returns the results whose status is failure.
func (rs Results) Failed() Results {
	var failed Results
	for _, r := range rs {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}

// Entries converts the results into report entries.
func (rs Results) Entries() []report.Entry {
	entries := make([]report.Entry, 0, len(rs))
	for _, r := range rs {
		entries = append(entries, report.Entry{
			Handle:       r.Handle,
			OK:           r.OK(),
			ResponseTime: r.ResponseTime,
		})
	}
	return entries
}

// Summary describes a finished pass.
type Summary struct {
	RunID     string          `json:"run_id"`
	Results   Results         `json:"results"`
	Skipped   []string        `json:"skipped,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	Elapsed   time.Duration   `json:"elapsed_ns"`
	CheckedAt time.Time       `json:"checked_at"`
	Report    report.Document `json:"-"`
	Text      string          `json:"report"`
	Announced bool            `json:"announced"`
	Published bool            `json:"published"`
}
