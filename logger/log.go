// Package logger implements the logging used across matrixcollect. Each log
// record includes the date, time, severity level, and description of the
// reported incident.
//
// The package defines a type, Logger, which provides several methods (such as
// Logger.Info and Logger.Error) for reporting incidents at different severity
// levels. Top-level functions sharing the same names use the default logger's
// methods. These behave like fmt.Print, while the variants suffixed by an f
// (i.e. Errorf) behave like fmt.Printf. Debug only accepts a single error.
//
// Records are written through zerolog, so components that need structured
// fields can obtain the underlying zerolog.Logger with Logger.Zerolog.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	kerrors "codeberg.org/kvo/std/errors"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/RunningKuma/matrix-on-vscode/errors"
)

// Logger writes leveled records to an io.Writer.
type Logger struct {
	out    io.Writer
	pretty bool
	zl     zerolog.Logger
}

// New creates a Logger writing to out at the level named by level (see
// ParseLevel). With pretty set, records are rendered through a
// zerolog.ConsoleWriter, coloured only when out is a terminal.
func New(out io.Writer, level string, pretty bool) *Logger {
	w := out
	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.DateTime,
			NoColor:    !isTerminal(out),
		}
	}
	zl := zerolog.New(w).With().Timestamp().Logger().Level(ParseLevel(level))
	return &Logger{out: out, pretty: pretty, zl: zl}
}

// ParseLevel maps a level name to a zerolog level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Zerolog returns the underlying structured logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}

// Writer returns the destination of l.
func (l *Logger) Writer() io.Writer {
	return l.out
}

// Fatal logs at level FATAL, then calls os.Exit(1).
func (l *Logger) Fatal(v ...any) {
	l.zl.WithLevel(zerolog.FatalLevel).Msg(fmt.Sprint(v...))
	os.Exit(1)
}

func (l *Logger) Fatalf(format string, v ...any) {
	l.zl.WithLevel(zerolog.FatalLevel).Msgf(format, v...)
	os.Exit(1)
}

// Debug logs err at level DEBUG along with its full wrap chain. When the
// chain holds an error that recorded its origin, the function and source
// line it was raised at are logged too.
func (l *Logger) Debug(err error) {
	if err == nil {
		return
	}
	ev := l.zl.Debug().Err(err)
	var kerr kerrors.Error
	if errors.As(err, &kerr) {
		ev = ev.Str("func", kerr.Func()).
			Str("source", fmt.Sprintf("%s:%d", filepath.Base(kerr.File()), kerr.Line()))
	}
	ev.Msg("traceback")
}

func (l *Logger) Debugf(format string, v ...any) {
	l.zl.Debug().Msgf(format, v...)
}

func (l *Logger) Error(v ...any) {
	l.zl.Error().Msg(fmt.Sprint(v...))
}

func (l *Logger) Errorf(format string, v ...any) {
	l.zl.Error().Msgf(format, v...)
}

func (l *Logger) Warn(v ...any) {
	l.zl.Warn().Msg(fmt.Sprint(v...))
}

func (l *Logger) Warnf(format string, v ...any) {
	l.zl.Warn().Msgf(format, v...)
}

func (l *Logger) Info(v ...any) {
	l.zl.Info().Msg(fmt.Sprint(v...))
}

func (l *Logger) Infof(format string, v ...any) {
	l.zl.Info().Msgf(format, v...)
}
