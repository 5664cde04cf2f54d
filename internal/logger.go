package internal

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"ingenico/entity"
	"ingenico/services"
)

// InitLogging installs the process-wide slog handler: tint for text output,
// the JSON handler otherwise.
func InitLogging(level, format, output string) error {
	var writer io.Writer
	switch strings.ToLower(output) {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		writer = file
	}
	slog.SetDefault(slog.New(newHandler(writer, parseLevel(level), format)))
	return nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func newHandler(writer io.Writer, level slog.Level, format string) slog.Handler {
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	}
	return tint.NewHandler(writer, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    !isTerminal(writer),
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" && a.Value.Kind() == slog.KindAny {
				if err, ok := a.Value.Any().(error); ok {
					return tint.Err(err)
				}
			}
			return a
		},
	})
}

func isTerminal(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

// Logger is a category-scoped services.LogHandler. Debug output is dropped
// unless debug is on; warnings and errors are copied to the database when
// one is set.
type Logger struct {
	category string
	debug    bool
	database services.Database
	log      *slog.Logger
}

func NewLogger(category string, debug bool, database services.Database) *Logger {
	return &Logger{
		category: category,
		debug:    debug,
		database: database,
		log:      slog.Default().With(slog.String("category", category)),
	}
}

func (l *Logger) Debug(text string) {
	if l.debug {
		l.log.Debug(text)
	}
}

func (l *Logger) Info(text string) {
	l.log.Info(text)
}

func (l *Logger) Warn(text string) {
	l.log.Warn(text)
	l.store("warn", text, nil)
}

func (l *Logger) Error(text string, err error) {
	l.log.Error(text, slog.Any("error", err))
	l.store("error", text, err)
}

func (l *Logger) store(level, text string, err error) {
	if l.database == nil {
		return
	}
	message := &entity.LogMessage{
		Time:     time.Now(),
		Level:    level,
		Category: l.category,
		Text:     text,
	}
	if err != nil {
		message.Error = err.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if e := l.database.WriteLogMessage(ctx, message); e != nil {
		l.log.Warn("write log message", slog.Any("error", e))
	}
}
