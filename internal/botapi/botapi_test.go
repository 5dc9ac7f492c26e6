package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram/bot"

	"github.com/botzhub/botstatus/internal/monitor"
	"github.com/botzhub/botstatus/internal/report"
)

type call struct {
	method string
	params map[string]string
}

// fakeAPI records Bot API calls and answers each with reply.
type fakeAPI struct {
	mu    sync.Mutex
	calls []call
	reply string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	c := call{method: parts[len(parts)-1], params: map[string]string{}}

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		for k, v := range body {
			if s, ok := v.(string); ok {
				c.params[k] = s
			} else {
				raw, _ := json.Marshal(v)
				c.params[k] = string(raw)
			}
		}
	} else if err := r.ParseMultipartForm(1 << 20); err == nil {
		for k, v := range r.MultipartForm.Value {
			c.params[k] = v[0]
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, c)
	reply := f.reply
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(reply))
}

func (f *fakeAPI) last(t *testing.T) call {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("no Bot API calls recorded")
	}
	return f.calls[len(f.calls)-1]
}

const okMessage = `{"ok":true,"result":{"message_id":5,"date":0,"chat":{"id":-1001234,"type":"channel"}}}`

func newTestBot(t *testing.T, api *fakeAPI) *tgbot.Bot {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	b, err := New("123456:TEST", nil, tgbot.WithServerURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

type staticReader report.Document

func (s staticReader) Read(context.Context) (report.Document, error) { return report.Document(s), nil }

func TestNewRequiresToken(t *testing.T) {
	t.Parallel()

	if _, err := New("", nil); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestBoardWrite(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{reply: okMessage}
	board := NewBoard(newTestBot(t, api), nil, -1001234, 5)

	doc := report.Document{
		{Text: "Bot: ", Style: report.Plain},
		{Text: "a_b", Style: report.Bold},
	}
	if err := board.Write(context.Background(), doc); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	c := api.last(t)
	if c.method != "editMessageText" {
		t.Errorf("method = %q, want editMessageText", c.method)
	}
	if c.params["text"] != "Bot: <b>a_b</b>" {
		t.Errorf("text = %q", c.params["text"])
	}
	if c.params["parse_mode"] != "HTML" {
		t.Errorf("parse_mode = %q, want HTML", c.params["parse_mode"])
	}
	if c.params["message_id"] != "5" {
		t.Errorf("message_id = %q, want 5", c.params["message_id"])
	}
}

func TestBoardRead(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{reply: okMessage}
	b := newTestBot(t, api)

	current := staticReader{{Text: "Bot: ", Style: report.Plain}, {Text: "alpha", Style: report.Bold}}
	got, err := NewBoard(b, current, -1001234, 5).Read(context.Background())
	if err != nil || got.HTML() != "Bot: <b>alpha</b>" {
		t.Errorf("Read() = %q, %v", got.HTML(), err)
	}

	if _, err := NewBoard(b, nil, -1001234, 5).Read(context.Background()); err == nil {
		t.Error("expected error without a reader")
	}
}

func TestBoardWriteFloodWait(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{reply: `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`}
	board := NewBoard(newTestBot(t, api), nil, -1001234, 5)

	err := board.Write(context.Background(), report.Document{{Text: "x"}})
	wait, ok := monitor.AsFloodWait(err)
	if !ok {
		t.Fatalf("Write() error = %v, want flood wait", err)
	}
	if wait != 7*time.Second {
		t.Errorf("wait = %v, want 7s", wait)
	}
}

func TestNotifier(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{reply: okMessage}
	n := NewNotifier(newTestBot(t, api), 42, "@BotzHub", nil)

	summary := &monitor.Summary{
		RunID: "run-1",
		Results: monitor.Results{
			{Handle: "alpha", Status: monitor.StatusSuccess},
			{Handle: "beta", Status: monitor.StatusFailure},
		},
	}
	if err := n.Notify(context.Background(), summary); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	c := api.last(t)
	if c.method != "sendMessage" {
		t.Errorf("method = %q, want sendMessage", c.method)
	}
	if c.params["chat_id"] != "42" {
		t.Errorf("chat_id = %q, want 42", c.params["chat_id"])
	}
	if !strings.Contains(c.params["text"], "1 of 2 bots") || !strings.Contains(c.params["text"], "@beta") {
		t.Errorf("text = %q", c.params["text"])
	}
	if strings.Contains(c.params["text"], "@alpha") {
		t.Errorf("healthy bot listed in alert: %q", c.params["text"])
	}
}

func TestWrapErr(t *testing.T) {
	t.Parallel()

	plain := errors.New("bad request")
	if got := wrapErr(plain); got != plain {
		t.Errorf("wrapErr() = %v, want unchanged error", got)
	}
	if _, ok := monitor.AsFloodWait(wrapErr(&tgbot.TooManyRequestsError{RetryAfter: 3})); !ok {
		t.Error("expected flood wait from TooManyRequestsError")
	}
}
