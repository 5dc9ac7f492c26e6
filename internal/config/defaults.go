package config

import (
	"time"

	"github.com/spf13/viper"
)

// Keys double as environment variable names once upper-cased.
const (
	keyAppID       = "app_id"
	keyAPIHash     = "api_hash"
	keySession     = "session"
	keyBots        = "bots"
	keyChannelID   = "channel_id"
	keyMessageID   = "message_id"
	keyChannelName = "channel_name"
	keyTimeZone    = "time_zone"

	keyTrigger     = "trigger"
	keyReplyWait   = "reply_wait"
	keyReplyMatch  = "reply_match"
	keyUpdateEvery = "update_every"

	keyConnectTimeout = "connect_timeout"

	keyLogLevel  = "log_level"
	keyLogFormat = "log_format"

	keyBotToken    = "bot_token"
	keyAlertChatID = "alert_chat_id"
	keySessionDB   = "session_db"

	keySchedule   = "schedule"
	keyListenAddr = "listen_addr"
)

// Default values for optional settings.
const (
	DefaultChannelName    = "@BotzHub"
	DefaultTimeZone       = "Asia/Kolkata"
	DefaultTrigger        = "/start"
	DefaultReplyWait      = 10 * time.Second
	DefaultReplyMatch     = MatchContent
	DefaultUpdateEvery    = "2 hours"
	DefaultConnectTimeout = time.Minute
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
	DefaultSchedule       = "0 */2 * * *"
	DefaultEnvFile        = ".env"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyChannelName, DefaultChannelName)
	v.SetDefault(keyTimeZone, DefaultTimeZone)
	v.SetDefault(keyTrigger, DefaultTrigger)
	v.SetDefault(keyReplyWait, DefaultReplyWait.String())
	v.SetDefault(keyReplyMatch, DefaultReplyMatch)
	v.SetDefault(keyUpdateEvery, DefaultUpdateEvery)
	v.SetDefault(keyConnectTimeout, DefaultConnectTimeout.String())
	v.SetDefault(keyLogLevel, DefaultLogLevel)
	v.SetDefault(keyLogFormat, DefaultLogFormat)
	v.SetDefault(keySchedule, DefaultSchedule)
}
