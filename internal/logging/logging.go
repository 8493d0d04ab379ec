package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Level represents log severity.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func ParseLevel(s string) Level {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// Logger is a printf-style facade over zerolog.
type Logger struct {
	min Level
	zl  zerolog.Logger
}

// New builds a logger writing human-readable lines to stderr, or JSON lines to stdout.
func New(level string, jsonOut bool) *Logger {
	if jsonOut {
		return NewWithWriter(level, true, os.Stdout)
	}
	return NewWithWriter(level, false, os.Stderr)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(level string, jsonOut bool, out io.Writer) *Logger {
	min := ParseLevel(level)
	w := out
	if !jsonOut {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: !IsTerminal(out)}
	}
	zl := zerolog.New(w).Level(zerologLevel(min)).With().Timestamp().Logger()
	return &Logger{min: min, zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{min: Error + 1, zl: zerolog.Nop()}
}

func (l *Logger) Enabled(v Level) bool { return l != nil && v >= l.min }

func (l *Logger) Debugf(format string, a ...any) { l.log(Debug, fmt.Sprintf(format, a...)) }
func (l *Logger) Infof(format string, a ...any)  { l.log(Info, fmt.Sprintf(format, a...)) }
func (l *Logger) Warnf(format string, a ...any)  { l.log(Warn, fmt.Sprintf(format, a...)) }
func (l *Logger) Errorf(format string, a ...any) { l.log(Error, fmt.Sprintf(format, a...)) }

// With returns a child logger that stamps every line with key=value.
func (l *Logger) With(key string, value any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{min: l.min, zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *Logger) log(level Level, msg string) {
	if !l.Enabled(level) {
		return
	}
	switch level {
	case Debug:
		l.zl.Debug().Msg(msg)
	case Warn:
		l.zl.Warn().Msg(msg)
	case Error:
		l.zl.Error().Msg(msg)
	default:
		l.zl.Info().Msg(msg)
	}
}

func zerologLevel(l Level) zerolog.Level {
	switch l {
	case Debug:
		return zerolog.DebugLevel
	case Warn:
		return zerolog.WarnLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
