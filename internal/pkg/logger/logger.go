package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

// ParseLevel maps a config string to a Level. Unknown values yield INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Logger provides structured JSON logging with secret redaction.
type Logger struct {
	mu           sync.Mutex
	level        Level
	redactSecret bool
	out          io.Writer
}

var defaultLogger = &Logger{level: INFO, redactSecret: true, out: os.Stderr}

// SetLevel sets the minimum log level for the default logger.
func SetLevel(l Level) {
	defaultLogger.mu.Lock()
	defaultLogger.level = l
	defaultLogger.mu.Unlock()
}

// SetRedactSecrets enables or disables secret redaction for the default logger.
func SetRedactSecrets(r bool) {
	defaultLogger.mu.Lock()
	defaultLogger.redactSecret = r
	defaultLogger.mu.Unlock()
}

// SetOutput redirects the default logger. Tests use it to capture lines.
func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defaultLogger.out = w
	defaultLogger.mu.Unlock()
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { defaultLogger.log(DEBUG, msg, fields...) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { defaultLogger.log(INFO, msg, fields...) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { defaultLogger.log(WARN, msg, fields...) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { defaultLogger.log(ERROR, msg, fields...) }

// Scoped is a logger that prepends a fixed set of fields to every entry.
type Scoped struct {
	fields []interface{}
}

// With returns a scoped logger carrying the given key/value pairs.
func With(fields ...interface{}) *Scoped {
	return &Scoped{fields: append([]interface{}(nil), fields...)}
}

// With derives a child scope with additional fields.
func (s *Scoped) With(fields ...interface{}) *Scoped {
	merged := make([]interface{}, 0, len(s.fields)+len(fields))
	merged = append(merged, s.fields...)
	merged = append(merged, fields...)
	return &Scoped{fields: merged}
}

func (s *Scoped) Debug(msg string, fields ...interface{}) { s.emit(DEBUG, msg, fields) }
func (s *Scoped) Info(msg string, fields ...interface{})  { s.emit(INFO, msg, fields) }
func (s *Scoped) Warn(msg string, fields ...interface{})  { s.emit(WARN, msg, fields) }
func (s *Scoped) Error(msg string, fields ...interface{}) { s.emit(ERROR, msg, fields) }

func (s *Scoped) emit(level Level, msg string, fields []interface{}) {
	all := make([]interface{}, 0, len(s.fields)+len(fields))
	all = append(all, s.fields...)
	all = append(all, fields...)
	defaultLogger.log(level, msg, all...)
}

type ctxKey struct{}

// NewContext stores a scoped logger in ctx.
func NewContext(ctx context.Context, s *Scoped) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request-scoped logger, or an empty scope.
func FromContext(ctx context.Context) *Scoped {
	if ctx != nil {
		if s, ok := ctx.Value(ctxKey{}).(*Scoped); ok && s != nil {
			return s
		}
	}
	return &Scoped{}
}

func (l *Logger) log(level Level, msg string, fields ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	entry := map[string]interface{}{
		"time":  time.Now().UTC().Format(time.RFC3339),
		"level": levelNames[level],
		"msg":   msg,
	}

	// Parse key-value pairs from fields
	for i := 0; i < len(fields)-1; i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		val := fmt.Sprintf("%v", fields[i+1])
		if l.redactSecret {
			val = redactSecretValue(key, val)
		}
		entry[key] = val
	}

	data, _ := json.Marshal(entry)
	fmt.Fprintln(l.out, string(data))
}

func redactSecretValue(key, val string) string {
	key = strings.ToLower(key)
	for _, marker := range []string{"key", "secret", "token", "password"} {
		if strings.Contains(key, marker) {
			return RedactSecret(val)
		}
	}
	return val
}
