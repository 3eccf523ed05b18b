// Package logging provides structured logging with operation-id propagation
// through context. Every tool invocation gets a short operation id that shows
// up on each log line it produces.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logging interface used across the server.
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})

	// Context-aware variants pick up the operation id from the context.
	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})
	DebugContext(ctx context.Context, msg string, fields ...interface{})

	WithOperationID(opID string) Logger
	WithComponent(component string) Logger
}

// LogEntry is one structured log line.
type LogEntry struct {
	Timestamp   string                 `json:"timestamp"`
	Level       string                 `json:"level"`
	Message     string                 `json:"message"`
	OperationID string                 `json:"op,omitempty"`
	Component   string                 `json:"component,omitempty"`
	File        string                 `json:"file,omitempty"`
	Line        int                    `json:"line,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// ContextKey is the type for context values owned by this package.
type ContextKey string

// OperationIDKey carries the current operation id through a context.
const OperationIDKey ContextKey = "operation_id"

// StructuredLogger writes JSON or text entries to stderr. Stdout is reserved
// for the MCP stdio transport.
type StructuredLogger struct {
	level     LogLevel
	opID      string
	component string
	useJSON   bool
}

// LogLevel orders log severities.
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// NewLogger creates a structured logger at the given level. Output format is
// JSON unless LOG_JSON is set to false.
func NewLogger(level LogLevel) Logger {
	return &StructuredLogger{
		level:   level,
		useJSON: getEnvBool("LOG_JSON", true),
	}
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1"
}

// WithOperationID returns a logger bound to an operation id.
func (l *StructuredLogger) WithOperationID(opID string) Logger {
	return &StructuredLogger{
		level:     l.level,
		opID:      opID,
		component: l.component,
		useJSON:   l.useJSON,
	}
}

// WithComponent returns a logger bound to a component name.
func (l *StructuredLogger) WithComponent(component string) Logger {
	return &StructuredLogger{
		level:     l.level,
		opID:      l.opID,
		component: component,
		useJSON:   l.useJSON,
	}
}

// Info logs an info message.
func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	if l.level <= INFO {
		l.logEntry("INFO", msg, "", fields...)
	}
}

// InfoContext logs an info message with the context's operation id.
func (l *StructuredLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= INFO {
		l.logEntry("INFO", msg, extractOperationID(ctx), fields...)
	}
}

// Warn logs a warning message.
func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	if l.level <= WARN {
		l.logEntry("WARN", msg, "", fields...)
	}
}

// WarnContext logs a warning message with the context's operation id.
func (l *StructuredLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= WARN {
		l.logEntry("WARN", msg, extractOperationID(ctx), fields...)
	}
}

// Error logs an error message.
func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	if l.level <= ERROR {
		l.logEntry("ERROR", msg, "", fields...)
	}
}

// ErrorContext logs an error message with the context's operation id.
func (l *StructuredLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= ERROR {
		l.logEntry("ERROR", msg, extractOperationID(ctx), fields...)
	}
}

// Debug logs a debug message.
func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	if l.level <= DEBUG {
		l.logEntry("DEBUG", msg, "", fields...)
	}
}

// DebugContext logs a debug message with the context's operation id.
func (l *StructuredLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= DEBUG {
		l.logEntry("DEBUG", msg, extractOperationID(ctx), fields...)
	}
}

// Fatal logs a fatal message and exits.
func (l *StructuredLogger) Fatal(msg string, fields ...interface{}) {
	l.logEntry("FATAL", msg, "", fields...)
	os.Exit(1)
}

func (l *StructuredLogger) logEntry(level, msg, contextOpID string, fields ...interface{}) {
	opID := l.opID
	if contextOpID != "" {
		opID = contextOpID
	}

	_, file, line, ok := runtime.Caller(3)
	if !ok {
		file = "unknown"
		line = 0
	} else {
		parts := strings.Split(file, "/")
		file = parts[len(parts)-1]
	}

	fieldMap := make(map[string]interface{})
	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			key := fmt.Sprintf("%v", fields[i])
			fieldMap[key] = fields[i+1]
		} else {
			fieldMap[fmt.Sprintf("field_%d", i)] = fields[i]
		}
	}

	entry := LogEntry{
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Level:       level,
		Message:     msg,
		OperationID: opID,
		Component:   l.component,
		File:        file,
		Line:        line,
		Fields:      fieldMap,
	}

	if l.useJSON {
		l.outputJSON(entry)
	} else {
		l.outputText(entry)
	}
}

func (l *StructuredLogger) outputJSON(entry LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, string(data))
}

func (l *StructuredLogger) outputText(entry LogEntry) {
	var parts []string

	parts = append(parts, entry.Timestamp, fmt.Sprintf("[%s]", entry.Level))
	if entry.OperationID != "" {
		parts = append(parts, fmt.Sprintf("op:%s", entry.OperationID))
	}
	if entry.Component != "" {
		parts = append(parts, fmt.Sprintf("component:%s", entry.Component))
	}
	parts = append(parts, entry.Message)
	for k, v := range entry.Fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	if entry.File != "" && entry.Line > 0 {
		parts = append(parts, fmt.Sprintf("(%s:%d)", entry.File, entry.Line))
	}

	fmt.Fprintln(os.Stderr, strings.Join(parts, " "))
}

func extractOperationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if opID, ok := ctx.Value(OperationIDKey).(string); ok {
		return opID
	}
	return ""
}

var defaultLogger = NewLogger(INFO)

// Package-level helpers delegating to the default logger.

func Info(msg string, fields ...interface{})  { defaultLogger.Info(msg, fields...) }
func Warn(msg string, fields ...interface{})  { defaultLogger.Warn(msg, fields...) }
func Error(msg string, fields ...interface{}) { defaultLogger.Error(msg, fields...) }
func Debug(msg string, fields ...interface{}) { defaultLogger.Debug(msg, fields...) }
func Fatal(msg string, fields ...interface{}) { defaultLogger.Fatal(msg, fields...) }

func InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	defaultLogger.InfoContext(ctx, msg, fields...)
}

func WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	defaultLogger.WarnContext(ctx, msg, fields...)
}

func ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	defaultLogger.ErrorContext(ctx, msg, fields...)
}

func DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	defaultLogger.DebugContext(ctx, msg, fields...)
}

// NewOperationID returns a fresh short operation id: the first 8 hex
// characters of a new UUID.
func NewOperationID() string {
	return uuid.New().String()[:8]
}

// WithOperationID installs an operation id into the context, generating one
// if empty.
func WithOperationID(ctx context.Context, opID string) context.Context {
	if opID == "" {
		opID = NewOperationID()
	}
	return context.WithValue(ctx, OperationIDKey, opID)
}

// GetOperationID returns the operation id carried by the context, or "".
func GetOperationID(ctx context.Context) string {
	return extractOperationID(ctx)
}

// WithComponent returns a component-scoped logger from the default logger.
func WithComponent(component string) Logger {
	return defaultLogger.WithComponent(component)
}

// ParseLogLevel maps a level name to a LogLevel, defaulting to INFO.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// SetDefaultLogger replaces the package default logger.
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}
