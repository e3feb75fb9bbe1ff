package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/RunningKuma/matrix-on-vscode/errors"
)

var (
	mu      sync.RWMutex
	std     = New(os.Stderr, "info", true)
	logFile *os.File
)

// Default returns the logger used by the top-level functions.
func Default() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return std
}

// SetDefault replaces the logger used by the top-level functions.
func SetDefault(l *Logger) {
	mu.Lock()
	std = l
	mu.Unlock()
}

// Configure rebuilds the default logger on os.Stderr with the given level and
// rendering.
func Configure(level string, pretty bool) {
	SetDefault(New(os.Stderr, level, pretty))
}

// Set up the logger to use a log file. Invoking it will start logging to file
// as well as console. Must provide the path to where the log files should go.
func UseConfigFile(logPath string) error {
	err := os.MkdirAll(logPath, os.ModePerm)
	if err != nil {
		return errors.NewError("logger", "cannot create log directory", err)
	}

	name := filepath.Join(logPath, time.Now().Format("2006-01-02_150405")+".log")
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return errors.NewError("logger", "could not open log file", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	console := std.out
	if std.pretty {
		console = std.consoleWriter()
	}
	zl := std.zl.Output(zerolog.MultiLevelWriter(console, f))
	std = &Logger{out: io.MultiWriter(std.out, f), pretty: std.pretty, zl: zl}
	return nil
}

// Close releases the log file opened by UseConfigFile, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

func (l *Logger) consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: l.out, TimeFormat: time.DateTime, NoColor: !isTerminal(l.out)}
}

// SetWriter redirects the default logger to w, keeping its level.
func SetWriter(w io.Writer) {
	mu.Lock()
	std = &Logger{out: w, zl: std.zl.Output(w)}
	mu.Unlock()
}

func Writer() io.Writer {
	return Default().Writer()
}

func Fatal(v ...any) {
	Default().Fatal(v...)
}

func Fatalf(format string, v ...any) {
	Default().Fatalf(format, v...)
}

func Debug(err error) {
	Default().Debug(err)
}

func Debugf(format string, v ...any) {
	Default().Debugf(format, v...)
}

func Error(v ...any) {
	Default().Error(v...)
}

func Errorf(format string, v ...any) {
	Default().Errorf(format, v...)
}

func Warn(v ...any) {
	Default().Warn(v...)
}

func Warnf(format string, v ...any) {
	Default().Warnf(format, v...)
}

func Info(v ...any) {
	Default().Info(v...)
}

func Infof(format string, v ...any) {
	Default().Infof(format, v...)
}
