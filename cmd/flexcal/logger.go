package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	charmLog "github.com/charmbracelet/log"

	"github.com/hylla/flexcal/internal/config"
)

// defaultDevLogDir is resolved against the working directory.
const defaultDevLogDir = ".flexcal/log"

// runtimeLogger writes every event to the console and, in dev mode, to a daily
// logfmt file. The zero value and a nil pointer discard everything.
type runtimeLogger struct {
	sinks  []*charmLog.Logger
	file   *os.File
	devLog string
}

func newRuntimeLogger(stderr io.Writer, appName string, devMode bool, cfg config.LoggingConfig, now func() time.Time) (*runtimeLogger, error) {
	level := charmLog.InfoLevel
	if name := strings.TrimSpace(cfg.Level); name != "" {
		parsed, err := charmLog.ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
		}
		level = parsed
	}
	if stderr == nil {
		stderr = io.Discard
	}
	sink := func(w io.Writer, formatter charmLog.Formatter) *charmLog.Logger {
		return charmLog.NewWithOptions(w, charmLog.Options{
			Level:           level,
			Prefix:          appName,
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
			Formatter:       formatter,
		})
	}

	logger := &runtimeLogger{sinks: []*charmLog.Logger{sink(stderr, charmLog.TextFormatter)}}
	if !devMode || !cfg.DevFile.Enabled {
		return logger, nil
	}
	if now == nil {
		now = time.Now
	}
	path, err := devLogFilePath(cfg.DevFile.Dir, appName, now().UTC())
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}
	logger.sinks = append(logger.sinks, sink(file, charmLog.LogfmtFormatter))
	logger.file = file
	logger.devLog = path
	return logger, nil
}

// With returns a logger that adds keyvals to every event. The child shares the
// parent's dev file; only the parent closes it.
func (l *runtimeLogger) With(keyvals ...any) *runtimeLogger {
	if l == nil {
		return nil
	}
	child := &runtimeLogger{devLog: l.devLog}
	for _, sink := range l.sinks {
		child.sinks = append(child.sinks, sink.With(keyvals...))
	}
	return child
}

// DevLogPath returns the dev log file, or "" when only the console is active.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil {
		return ""
	}
	return l.devLog
}

func (l *runtimeLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func (l *runtimeLogger) Debug(msg string, keyvals ...any) { l.log(charmLog.DebugLevel, msg, keyvals) }
func (l *runtimeLogger) Info(msg string, keyvals ...any) { l.log(charmLog.InfoLevel, msg, keyvals) }
func (l *runtimeLogger) Warn(msg string, keyvals ...any) { l.log(charmLog.WarnLevel, msg, keyvals) }
func (l *runtimeLogger) Error(msg string, keyvals ...any) { l.log(charmLog.ErrorLevel, msg, keyvals) }

func (l *runtimeLogger) log(level charmLog.Level, msg string, keyvals []any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		sink.Log(level, msg, keyvals...)
	}
}

// devLogFilePath names the day's log file, <dir>/<app>-YYYYMMDD.log.
func devLogFilePath(dir, appName string, day time.Time) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = defaultDevLogDir
	}
	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve dev log dir: %w", err)
		}
		dir = filepath.Join(cwd, dir)
	}
	name := sanitizeLogFileStem(appName) + "-" + day.Format("20060102") + ".log"
	return filepath.Join(filepath.Clean(dir), name), nil
}

// sanitizeLogFileStem maps anything but letters, digits, '.', '_' and '-' to '-'.
func sanitizeLogFileStem(appName string) string {
	stem := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '_' || r == '-' {
			return r
		}
		return '-'
	}, strings.TrimSpace(appName))
	if stem = strings.Trim(stem, "-"); stem == "" {
		return "flexcal"
	}
	return stem
}
