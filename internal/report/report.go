package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	separator     = "━━━━━━━━━━━━━━━━━━━━━━━━━"
	glyphSuccess  = "✅"
	glyphFailure  = "❌"
	timestampForm = "15:04:05 - 02 January 2006"
)

// Entry is one per-bot block of the report.
type Entry struct {
	Handle string
	OK     bool
	// ResponseTime is in milliseconds. Nil renders an empty field.
	ResponseTime *float64
}

// Input carries everything Build needs.
type Input struct {
	ChannelName string
	Entries     []Entry
	Elapsed     time.Duration
	CheckedAt   time.Time
	Location    *time.Location
	TimeZone    string
	UpdateEvery string
}

// Build renders the status report. Entries appear in the given order.
func Build(in Input) Document {
	b := &builder{}

	b.plain("• ").bold(in.ChannelName).plain(" - ").italic("Bot Status").plain(" •\n\n")

	for _, e := range in.Entries {
		b.plain(separator + "\n")
		b.plain("🤖 ").bold("Bot: " + e.Handle).plain("\n")
		b.plain("├ Username: @" + e.Handle + "\n")
		b.plain("├ Response Time: ")
		if e.ResponseTime != nil {
			b.code(FormatResponseTime(*e.ResponseTime))
		}
		b.plain("\n")
		b.plain("└ Status: " + StatusGlyph(e.OK) + "\n")
	}

	b.plain("\n• ").bold("Last Checked In").plain(" ").code(FormatDuration(in.Elapsed)).plain(" •\n")
	b.plain("• ").bold("Last Checked At").plain(" ").
		code(FormatTimestamp(in.CheckedAt, in.Location, in.TimeZone)).plain(" •\n")
	b.plain("\n• ").italic("This message will be updated every " + in.UpdateEvery + ".").plain(" •\n")

	return b.doc
}

// Announce renders the in-progress banner followed by the previous content
// of the status message, formatting included.
func Announce(channelName string, previous Document) Document {
	b := &builder{}
	b.plain("• ").bold("New periodic check in progress for " + channelName + "...").plain(" •\n\n")
	for _, s := range previous {
		b.add(s.Style, s.Text)
	}
	return b.doc
}

// Alert renders a short notice listing the bots that failed a pass.
func Alert(channelName string, failed []string, total int) Document {
	b := &builder{}
	b.plain("⚠️ ").bold(channelName).
		plain(fmt.Sprintf(" - %d of %d bots are not responding\n", len(failed), total))
	for _, handle := range failed {
		b.plain("\n" + glyphFailure + " @" + handle)
	}
	return b.doc
}

// StatusGlyph returns the status marker shown for a bot.
func StatusGlyph(ok bool) string {
	if ok {
		return glyphSuccess
	}
	return glyphFailure
}

// FormatResponseTime renders a millisecond measurement, e.g. "10234.568ms".
func FormatResponseTime(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64) + "ms"
}

// FormatDuration renders the elapsed time of a pass as "1h 1m 1s ",
// omitting zero units. A pass shorter than a second renders in whole
// milliseconds, e.g. "450ms".
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60

	var b strings.Builder
	if hours > 0 {
		b.WriteString(strconv.FormatInt(hours, 10) + "h ")
	}
	if minutes > 0 {
		b.WriteString(strconv.FormatInt(minutes, 10) + "m ")
	}
	if seconds > 0 {
		b.WriteString(strconv.FormatInt(seconds, 10) + "s ")
	}
	if b.Len() == 0 {
		ms := math.Round(float64(d) / float64(time.Millisecond))
		b.WriteString(strconv.FormatInt(int64(ms), 10) + "ms")
	}
	return b.String()
}

// FormatTimestamp renders t in loc as "HH:MM:SS - DD Month YYYY [ name ]".
// Month names are English regardless of locale.
func FormatTimestamp(t time.Time, loc *time.Location, name string) string {
	if loc == nil {
		loc = time.UTC
	}
	if name == "" {
		name = loc.String()
	}
	return t.In(loc).Format(timestampForm) + " [ " + name + " ]"
}
