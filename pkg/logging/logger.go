package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level represents log severity
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// ParseLevel converts a config string into a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug, nil
	case LevelInfo, "":
		return LevelInfo, nil
	case LevelWarn, "warning":
		return LevelWarn, nil
	case LevelError:
		return LevelError, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Category represents the subsystem generating the log
type Category string

const (
	CategoryParser   Category = "parser"
	CategoryResolver Category = "resolver"
	CategoryGesture  Category = "gesture"
	CategoryEngine   Category = "engine"
	CategoryPilot    Category = "pilot"
	CategoryServer   Category = "server"
	CategoryJournal  Category = "journal"
	CategoryConfig   Category = "config"
)

// Event represents a structured log event
type Event struct {
	Level     Level
	Category  Category
	EventType string
	BatchID   string
	Details   map[string]any
	Message   string
}

// Options tunes file rotation.
type Options struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	MinLevel   Level
}

// DefaultOptions mirrors the config defaults.
func DefaultOptions() Options {
	return Options{MaxSizeMB: 20, MaxBackups: 5, MaxAgeDays: 14, MinLevel: LevelInfo}
}

// Logger writes structured events through zap. The session file receives
// every event at or above the minimum level; errors.jsonl receives errors only.
// A nil *Logger is valid and discards everything.
type Logger struct {
	sessionID string
	baseDir   string
	level     zap.AtomicLevel
	zl        *zap.Logger

	mu      sync.Mutex
	writers []*lumberjack.Logger
}

// NewLogger creates a file-backed logger with default rotation options.
func NewLogger(baseDir, sessionID string) (*Logger, error) {
	return NewLoggerWithOptions(baseDir, sessionID, DefaultOptions())
}

// NewLoggerWithOptions creates a file-backed logger rooted at baseDir.
func NewLoggerWithOptions(baseDir, sessionID string, opts Options) (*Logger, error) {
	sessionsDir := filepath.Join(baseDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	sessionName := sessionID
	if sessionName == "" {
		sessionName = "default"
	}
	sessionWriter := &lumberjack.Logger{
		Filename:   filepath.Join(sessionsDir, sessionName+".jsonl"),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}
	errorWriter := &lumberjack.Logger{
		Filename:   filepath.Join(baseDir, "errors.jsonl"),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
	}

	level := zap.NewAtomicLevelAt(opts.MinLevel.zapLevel())
	enc := zapcore.NewJSONEncoder(encoderConfig())
	core := zapcore.NewTee(
		zapcore.NewCore(enc, zapcore.AddSync(sessionWriter), level),
		zapcore.NewCore(enc.Clone(), zapcore.AddSync(errorWriter), zapcore.ErrorLevel),
	)

	l := &Logger{
		sessionID: sessionID,
		baseDir:   baseDir,
		level:     level,
		zl:        zap.New(core),
		writers:   []*lumberjack.Logger{sessionWriter, errorWriter},
	}
	// Touch both files so operators can tail them before the first event.
	for _, w := range l.writers {
		if _, err := w.Write(nil); err != nil {
			_ = l.Close()
			return nil, fmt.Errorf("failed to open log file %s: %w", w.Filename, err)
		}
	}
	return l, nil
}

// NewWithCore wraps an existing zap core. Tests pass an observer core.
func NewWithCore(core zapcore.Core, sessionID string) *Logger {
	return &Logger{
		sessionID: sessionID,
		level:     zap.NewAtomicLevelAt(zapcore.DebugLevel),
		zl:        zap.New(core),
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{level: zap.NewAtomicLevelAt(zapcore.InfoLevel), zl: zap.NewNop()}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.MessageKey = "message"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	cfg.CallerKey = zapcore.OmitKey
	cfg.StacktraceKey = zapcore.OmitKey
	return cfg
}

// SetMinLevel sets the minimum level for the session file.
func (l *Logger) SetMinLevel(level Level) {
	if l == nil {
		return
	}
	l.level.SetLevel(level.zapLevel())
}

// SessionID returns the id stamped on every event.
func (l *Logger) SessionID() string {
	if l == nil {
		return ""
	}
	return l.sessionID
}

// Zap exposes the underlying zap logger for libraries that want one.
func (l *Logger) Zap() *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l.zl
}

// Log writes an event.
func (l *Logger) Log(event Event) {
	if l == nil || l.zl == nil {
		return
	}
	lvl := event.Level.zapLevel()
	ce := l.zl.Check(lvl, event.Message)
	if ce == nil {
		return
	}
	fields := make([]zap.Field, 0, 5)
	fields = append(fields,
		zap.String("category", string(event.Category)),
		zap.String("type", event.EventType),
	)
	if l.sessionID != "" {
		fields = append(fields, zap.String("session_id", l.sessionID))
	}
	if event.BatchID != "" {
		fields = append(fields, zap.String("batch_id", event.BatchID))
	}
	if len(event.Details) > 0 {
		fields = append(fields, zap.Any("details", event.Details))
	}
	ce.Write(fields...)
}

// Debug logs a debug event
func (l *Logger) Debug(category Category, eventType, message string, details map[string]any) {
	l.Log(Event{Level: LevelDebug, Category: category, EventType: eventType, Message: message, Details: details})
}

// Info logs an info event
func (l *Logger) Info(category Category, eventType, message string, details map[string]any) {
	l.Log(Event{Level: LevelInfo, Category: category, EventType: eventType, Message: message, Details: details})
}

// Warn logs a warning event
func (l *Logger) Warn(category Category, eventType, message string, details map[string]any) {
	l.Log(Event{Level: LevelWarn, Category: category, EventType: eventType, Message: message, Details: details})
}

// Error logs an error event
func (l *Logger) Error(category Category, eventType, message string, details map[string]any) {
	l.Log(Event{Level: LevelError, Category: category, EventType: eventType, Message: message, Details: details})
}

// Close flushes zap and closes the rotating files.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.zl.Sync()
	var errs []error
	for _, w := range l.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.writers = nil
	if len(errs) > 0 {
		return fmt.Errorf("errors closing log files: %v", errs)
	}
	return nil
}
