package logger

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-co-op/gocron/v2"
)

// gocronLogger implements gocron.Logger on top of slog.
type gocronLogger struct {
	log *slog.Logger
}

// NewGocronLogger returns a gocron.Logger that forwards to log.
//
//nolint:ireturn // Interface return is required by gocron's API contract
func NewGocronLogger(log *slog.Logger) gocron.Logger {
	if log == nil {
		log = slog.Default()
	}
	return &gocronLogger{log: log.With("component", "gocron")}
}

func (l *gocronLogger) Debug(msg string, args ...any) {
	l.log.Debug(msg, processSchedulerArgs(args...)...)
}

func (l *gocronLogger) Error(msg string, args ...any) {
	l.log.Error(msg, processSchedulerArgs(args...)...)
}

func (l *gocronLogger) Info(msg string, args ...any) {
	l.log.Info(msg, processSchedulerArgs(args...)...)
}

func (l *gocronLogger) Warn(msg string, args ...any) {
	l.log.Warn(msg, processSchedulerArgs(args...)...)
}

// processSchedulerArgs normalizes gocron's key/value pairs so that error
// values carry a stable message and job lookups are labelled.
func processSchedulerArgs(args ...any) []any {
	processedArgs := make([]any, 0, len(args))

	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			processedArgs = append(processedArgs, "extra", args[i])
			break
		}

		key, val := fmt.Sprint(args[i]), args[i+1]

		if err, ok := val.(error); ok {
			if errors.Is(err, gocron.ErrJobNotFound) {
				processedArgs = append(processedArgs, key, "scheduled job not found: "+err.Error())
				continue
			}
			processedArgs = append(processedArgs, key, err.Error())
			continue
		}

		processedArgs = append(processedArgs, key, val)
	}

	return processedArgs
}
