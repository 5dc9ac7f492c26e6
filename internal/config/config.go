// Package config loads and validates the botstatus configuration. Values come
// from environment variables and, when present, a dotenv file. Real
// environment variables take precedence over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // timezone names must resolve in minimal containers

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrConfiguration wraps every error returned by Load.
var ErrConfiguration = errors.New("configuration error")

// Reply match modes decide how a probe recognises that a bot stayed silent.
const (
	// MatchContent treats the bot as silent when the latest message text
	// equals the trigger text that was just sent.
	MatchContent = "content"
	// MatchID treats the bot as silent when the latest message is the sent
	// message itself.
	MatchID = "id"
)

// Config is the immutable run configuration. It is built once by Load and
// passed by pointer to every component.
type Config struct {
	AppID     int      `validate:"required,gt=0"`
	APIHash   string   `validate:"required"`
	Session   string   `validate:"required"`
	Bots      []string `validate:"required,min=1,dive,required"`
	ChannelID int64    `validate:"required"`
	MessageID int      `validate:"required,gt=0"`

	ChannelName string `validate:"required"`
	TimeZone    string `validate:"required,timezone"`

	Trigger     string        `validate:"required"`
	ReplyWait   time.Duration `validate:"min=0s"`
	ReplyMatch  string        `validate:"oneof=content id"`
	UpdateEvery string        `validate:"required"`

	// ConnectTimeout bounds connecting and authorizing to Telegram.
	ConnectTimeout time.Duration `validate:"gt=0"`

	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=json text"`

	BotToken    string `validate:"required_with=AlertChatID"`
	AlertChatID int64
	SessionDB   string

	Schedule   string `validate:"required"`
	ListenAddr string

	// Location is TimeZone resolved by time.LoadLocation.
	Location *time.Location `validate:"-"`
}

// Load reads the configuration from the environment and the optional dotenv
// file at envFile, applies defaults and validates the result.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("%w: failed to read %s: %v", ErrConfiguration, envFile, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: failed to stat %s: %v", ErrConfiguration, envFile, err)
		}
	}

	cfg, err := fromViper(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	cfg.Location, err = time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown time zone %q: %v", ErrConfiguration, cfg.TimeZone, err)
	}

	return cfg, nil
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		APIHash:     strings.TrimSpace(v.GetString(keyAPIHash)),
		Session:     strings.TrimSpace(v.GetString(keySession)),
		Bots:        ParseBots(v.GetString(keyBots)),
		ChannelName: v.GetString(keyChannelName),
		TimeZone:    strings.TrimSpace(v.GetString(keyTimeZone)),
		Trigger:     v.GetString(keyTrigger),
		ReplyMatch:  strings.ToLower(strings.TrimSpace(v.GetString(keyReplyMatch))),
		UpdateEvery: v.GetString(keyUpdateEvery),
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString(keyLogLevel))),
		LogFormat:   strings.ToLower(strings.TrimSpace(v.GetString(keyLogFormat))),
		BotToken:    strings.TrimSpace(v.GetString(keyBotToken)),
		SessionDB:   strings.TrimSpace(v.GetString(keySessionDB)),
		Schedule:    strings.TrimSpace(v.GetString(keySchedule)),
		ListenAddr:  strings.TrimSpace(v.GetString(keyListenAddr)),
	}

	var err error
	if cfg.AppID, err = parseInt[int](v, keyAppID, true); err != nil {
		return nil, err
	}
	if cfg.ChannelID, err = parseInt[int64](v, keyChannelID, true); err != nil {
		return nil, err
	}
	if cfg.MessageID, err = parseInt[int](v, keyMessageID, true); err != nil {
		return nil, err
	}
	if cfg.AlertChatID, err = parseInt[int64](v, keyAlertChatID, false); err != nil {
		return nil, err
	}
	if cfg.ReplyWait, err = parseWait(v.GetString(keyReplyWait)); err != nil {
		return nil, fmt.Errorf("%s: %w", envName(keyReplyWait), err)
	}
	if cfg.ConnectTimeout, err = parseWait(v.GetString(keyConnectTimeout)); err != nil {
		return nil, fmt.Errorf("%s: %w", envName(keyConnectTimeout), err)
	}

	return cfg, nil
}

// ParseBots splits the bot list on whitespace. Order and duplicates are kept;
// a leading "@" is dropped from each handle.
func ParseBots(raw string) []string {
	fields := strings.Fields(raw)
	bots := make([]string, 0, len(fields))
	for _, f := range fields {
		bots = append(bots, strings.TrimPrefix(f, "@"))
	}
	return bots
}

func parseInt[T int | int64](v *viper.Viper, key string, required bool) (T, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		if required {
			return 0, fmt.Errorf("%s is required", envName(key))
		}
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", envName(key), raw)
	}
	return T(n), nil
}

// parseWait accepts Go duration strings ("10s", "1m30s") and bare numbers,
// which are read as seconds.
func parseWait(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return d, nil
}

func envName(key string) string {
	return strings.ToUpper(key)
}
