package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Constants for logging levels
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Logger interface defines the logging contract
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	With(args ...any) Logger
	WithGroup(name string) Logger
}

type options struct {
	out  io.Writer
	file *lumberjack.Logger
}

type Option func(*options)

// Copy log records to a rotating file
func WithFile(path string) Option {
	return func(o *options) {
		if path == "" {
			return
		}
		o.file = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}
}

// Write log records to w instead of stderr
func WithWriter(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}

// New creates logger for the environment:
// text records for development, JSON records for production
func New(environment string, level string, opts ...Option) (Logger, error) {
	switch environment {
	case EnvDevelopment:
		return NewTextLogger(level, opts...)
	case EnvProduction:
		return NewJSONLogger(level, opts...)
	default:
		return nil, fmt.Errorf("unknown environment %q", environment)
	}
}

// NewTextLogger creates a new text logger with the specified level
func NewTextLogger(level string, opts ...Option) (Logger, error) {
	handlerOpts, out, err := prepare(level, opts)
	if err != nil {
		return nil, err
	}

	return &slogLogger{logger: slog.New(slog.NewTextHandler(out, handlerOpts))}, nil
}

// NewJSONLogger creates a new JSON logger with the specified level
func NewJSONLogger(level string, opts ...Option) (Logger, error) {
	handlerOpts, out, err := prepare(level, opts)
	if err != nil {
		return nil, err
	}

	return &slogLogger{logger: slog.New(slog.NewJSONHandler(out, handlerOpts))}, nil
}

// NewNoOpLogger creates a logger that discards all log messages
func NewNoOpLogger() Logger {
	logger := slog.New(slog.DiscardHandler)
	return &slogLogger{logger: logger}
}

func prepare(level string, opts []Option) (*slog.HandlerOptions, io.Writer, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	o := options{out: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	out := o.out
	if o.file != nil {
		out = io.MultiWriter(o.out, o.file)
	}

	handlerOpts := &slog.HandlerOptions{
		Level:       lvl,
		AddSource:   true,
		ReplaceAttr: trimSource,
	}

	return handlerOpts, out, nil
}
