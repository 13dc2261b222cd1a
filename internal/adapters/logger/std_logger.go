package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"macdTraderBot/internal/ports"
)

// LogLevel defines the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	}
	return "UNKNOWN"
}

// ParseLevel converts a level name to a LogLevel, defaulting to Info for
// unknown names.
func ParseLevel(name string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	}
	return LevelInfo
}

// StdLogger implements the ports.Logger interface using the standard log
// package.
type StdLogger struct {
	logger   *log.Logger
	minLevel LogLevel
}

// NewStdLogger creates a logger writing to stderr with the given minimum
// level.
func NewStdLogger(minLevel LogLevel) *StdLogger {
	return &StdLogger{
		logger:   log.New(os.Stderr, "", log.LstdFlags|log.LUTC),
		minLevel: minLevel,
	}
}

func (s *StdLogger) log(level LogLevel, msg string, err error, fields ...map[string]interface{}) {
	if level < s.minLevel {
		return
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(level.String())
	b.WriteString("] ")
	b.WriteString(msg)

	if err != nil {
		b.WriteString(" error=")
		b.WriteString(fmt.Sprintf("%q", err.Error()))
	}

	if len(fields) > 0 && len(fields[0]) > 0 {
		keys := make([]string, 0, len(fields[0]))
		for k := range fields[0] {
			keys = append(keys, k)
		}
		// Stable key order keeps log lines diffable.
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(" ")
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(fmt.Sprintf("%v", fields[0][k]))
		}
	}

	s.logger.Println(b.String())
}

// Debug logs a message at Debug level.
func (s *StdLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	s.log(LevelDebug, msg, nil, fields...)
}

// Info logs a message at Info level.
func (s *StdLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	s.log(LevelInfo, msg, nil, fields...)
}

// Warn logs a message at Warning level.
func (s *StdLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	s.log(LevelWarn, msg, nil, fields...)
}

// Error logs an error message at Error level.
func (s *StdLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	s.log(LevelError, msg, err, fields...)
}

var _ ports.Logger = (*StdLogger)(nil)
