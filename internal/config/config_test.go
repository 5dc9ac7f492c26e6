package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	keyAppID, keyAPIHash, keySession, keyBots, keyChannelID, keyMessageID,
	keyChannelName, keyTimeZone, keyTrigger, keyReplyWait, keyReplyMatch,
	keyUpdateEvery, keyLogLevel, keyLogFormat, keyBotToken, keyAlertChatID,
	keySessionDB, keySchedule, keyListenAddr, keyConnectTimeout,
}

// setEnv clears every known variable and then applies vars.
func setEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(envName(k), "")
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func requiredVars() map[string]string {
	return map[string]string{
		"APP_ID":     "12345",
		"API_HASH":   "0123456789abcdef",
		"SESSION":    "1AbCdEf",
		"BOTS":       "alpha beta",
		"CHANNEL_ID": "-1001234567890",
		"MESSAGE_ID": "42",
	}
}

func TestLoadDefaults(t *testing.T) {
	setEnv(t, requiredVars())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AppID != 12345 || cfg.ChannelID != -1001234567890 || cfg.MessageID != 42 {
		t.Errorf("numeric values not parsed: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Bots, []string{"alpha", "beta"}) {
		t.Errorf("Bots = %v", cfg.Bots)
	}
	if cfg.ChannelName != DefaultChannelName {
		t.Errorf("ChannelName = %q, want %q", cfg.ChannelName, DefaultChannelName)
	}
	if cfg.TimeZone != DefaultTimeZone || cfg.Location == nil || cfg.Location.String() != DefaultTimeZone {
		t.Errorf("TimeZone = %q, Location = %v", cfg.TimeZone, cfg.Location)
	}
	if cfg.Trigger != "/start" {
		t.Errorf("Trigger = %q", cfg.Trigger)
	}
	if cfg.ReplyWait != 10*time.Second {
		t.Errorf("ReplyWait = %v", cfg.ReplyWait)
	}
	if cfg.ReplyMatch != MatchContent {
		t.Errorf("ReplyMatch = %q", cfg.ReplyMatch)
	}
	if cfg.ConnectTimeout != time.Minute {
		t.Errorf("ConnectTimeout = %v, want 1m", cfg.ConnectTimeout)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("log settings = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.Schedule != DefaultSchedule {
		t.Errorf("Schedule = %q", cfg.Schedule)
	}
}

func TestLoadOverrides(t *testing.T) {
	vars := requiredVars()
	vars["CHANNEL_NAME"] = "@MyBots"
	vars["TIME_ZONE"] = "Europe/Berlin"
	vars["REPLY_WAIT"] = "2.5"
	vars["REPLY_MATCH"] = "ID"
	vars["BOT_TOKEN"] = "123:abc"
	vars["ALERT_CHAT_ID"] = "777"
	vars["CONNECT_TIMEOUT"] = "15s"
	setEnv(t, vars)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChannelName != "@MyBots" || cfg.TimeZone != "Europe/Berlin" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.ReplyWait != 2500*time.Millisecond {
		t.Errorf("ReplyWait = %v", cfg.ReplyWait)
	}
	if cfg.ReplyMatch != MatchID {
		t.Errorf("ReplyMatch = %q", cfg.ReplyMatch)
	}
	if cfg.AlertChatID != 777 {
		t.Errorf("AlertChatID = %d", cfg.AlertChatID)
	}
	if cfg.ConnectTimeout != 15*time.Second {
		t.Errorf("ConnectTimeout = %v", cfg.ConnectTimeout)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(map[string]string)
		wantMsg string
	}{
		{"missing app id", func(m map[string]string) { delete(m, "APP_ID") }, "APP_ID is required"},
		{"non-numeric app id", func(m map[string]string) { m["APP_ID"] = "abc" }, "APP_ID must be an integer"},
		{"non-numeric message id", func(m map[string]string) { m["MESSAGE_ID"] = "12x" }, "MESSAGE_ID must be an integer"},
		{"non-numeric channel id", func(m map[string]string) { m["CHANNEL_ID"] = "chan" }, "CHANNEL_ID must be an integer"},
		{"missing hash", func(m map[string]string) { delete(m, "API_HASH") }, "APIHash"},
		{"missing session", func(m map[string]string) { delete(m, "SESSION") }, "Session"},
		{"empty bot list", func(m map[string]string) { m["BOTS"] = "   " }, "Bots"},
		{"bare at sign", func(m map[string]string) { m["BOTS"] = "alpha @" }, "Bots[1]"},
		{"unknown timezone", func(m map[string]string) { m["TIME_ZONE"] = "Mars/Olympus" }, "TimeZone"},
		{"bad reply match", func(m map[string]string) { m["REPLY_MATCH"] = "both" }, "ReplyMatch"},
		{"bad reply wait", func(m map[string]string) { m["REPLY_WAIT"] = "soon" }, "REPLY_WAIT"},
		{"bad connect timeout", func(m map[string]string) { m["CONNECT_TIMEOUT"] = "never" }, "CONNECT_TIMEOUT"},
		{"zero connect timeout", func(m map[string]string) { m["CONNECT_TIMEOUT"] = "0" }, "ConnectTimeout"},
		{"alert without token", func(m map[string]string) { m["ALERT_CHAT_ID"] = "5" }, "BotToken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := requiredVars()
			tt.mutate(vars)
			setEnv(t, vars)

			_, err := Load("")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("error %v does not wrap ErrConfiguration", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadEnvFile(t *testing.T) {
	setEnv(t, map[string]string{"MESSAGE_ID": "99"})

	path := filepath.Join(t.TempDir(), ".env")
	content := strings.Join([]string{
		"APP_ID=1",
		"API_HASH=hash",
		"SESSION=sess",
		"BOTS=one two one",
		"CHANNEL_ID=100",
		"MESSAGE_ID=5",
		"CHANNEL_NAME=@FromFile",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ChannelName != "@FromFile" {
		t.Errorf("ChannelName = %q", cfg.ChannelName)
	}
	if cfg.MessageID != 99 {
		t.Errorf("environment should win over file, MessageID = %d", cfg.MessageID)
	}
	if !reflect.DeepEqual(cfg.Bots, []string{"one", "two", "one"}) {
		t.Errorf("duplicates must be kept, Bots = %v", cfg.Bots)
	}
}

func TestLoadMissingEnvFileIsIgnored(t *testing.T) {
	setEnv(t, requiredVars())

	if _, err := Load(filepath.Join(t.TempDir(), "absent.env")); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestParseBots(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want []string
	}{
		{"", []string{}},
		{"alpha", []string{"alpha"}},
		{"  alpha\tbeta\n gamma ", []string{"alpha", "beta", "gamma"}},
		{"@alpha @beta alpha", []string{"alpha", "beta", "alpha"}},
		{"a,b", []string{"a,b"}},
	}

	for _, tt := range tests {
		if got := ParseBots(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseBots(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
