package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options tune the handler built by Setup.
type Options struct {
	// Format is "json" (default) or "console".
	Format string
	Level  slog.Level
	// File, when set, receives a rotated copy of every log line.
	File       string
	MaxSizeMB  int
	MaxBackups int
	Output     io.Writer
}

// Option mutates Options.
type Option func(*Options)

func WithFormat(format string) Option { return func(o *Options) { o.Format = format } }

func WithLevel(level slog.Level) Option { return func(o *Options) { o.Level = level } }

func WithFile(path string, maxSizeMB, maxBackups int) Option {
	return func(o *Options) {
		o.File = path
		o.MaxSizeMB = maxSizeMB
		o.MaxBackups = maxBackups
	}
}

func WithOutput(w io.Writer) Option { return func(o *Options) { o.Output = w } }

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Setup configures the standard library logger to emit structured JSON and returns
// the underlying slog.Logger for richer logging within the service. All log lines
// include the service name and environment when provided.
func Setup(service, env string, opts ...Option) *slog.Logger {
	cfg := Options{Format: "json", Level: slog.LevelInfo, Output: os.Stdout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if path := strings.TrimSpace(cfg.File); path != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
	}

	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		handler = tint.NewHandler(out, &tint.Options{
			Level:      cfg.Level,
			TimeFormat: time.RFC3339,
		})
	} else {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{
			Level: cfg.Level,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == slog.TimeKey {
					return slog.Attr{Key: "timestamp", Value: attr.Value}
				}
				if attr.Key == slog.LevelKey {
					level := strings.ToUpper(attr.Value.String())
					return slog.String("severity", level)
				}
				if attr.Key == slog.MessageKey {
					return slog.Attr{Key: "message", Value: attr.Value}
				}
				return attr
			},
		})
	}

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(service)),
	}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
