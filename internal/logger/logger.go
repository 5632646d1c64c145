package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents logging level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
	FATAL: "FATAL",
}

// Fields represents structured logging fields
type Fields map[string]interface{}

// Logger provides leveled structured logging for the kernel server
type Logger struct {
	mu        sync.Mutex
	level     Level
	output    io.Writer
	component string
	format    string // "text" or "json"
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Init initializes the default logger
func Init(level, format, component string) {
	once.Do(func() {
		defaultLogger = New(level, format, component)
	})
}

// GetDefault returns the default logger, or nil if Init was never called
func GetDefault() *Logger {
	return defaultLogger
}

// New creates a new logger instance
func New(levelStr, format, component string) *Logger {
	return &Logger{
		level:     parseLevel(levelStr),
		output:    os.Stdout,
		component: component,
		format:    format,
	}
}

// WithComponent creates a new logger with a specific component name
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		level:     l.level,
		output:    l.output,
		component: component,
		format:    l.format,
	}
}

// SetOutput redirects log output; used by tests
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Fields) {
	l.log(DEBUG, msg, mergeFields(fields...))
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Fields) {
	l.log(INFO, msg, mergeFields(fields...))
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Fields) {
	l.log(WARN, msg, mergeFields(fields...))
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Fields) {
	l.log(ERROR, msg, mergeFields(fields...))
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, fields ...Fields) {
	l.log(FATAL, msg, mergeFields(fields...))
	os.Exit(1)
}

func (l *Logger) log(level Level, msg string, fields Fields) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")

	if l.format == "json" {
		l.logJSON(timestamp, level, msg, fields)
	} else {
		l.logText(timestamp, level, msg, fields)
	}
}

// logText logs in human-readable text format:
// [TIMESTAMP] LEVEL [COMPONENT] message key=value
func (l *Logger) logText(timestamp string, level Level, msg string, fields Fields) {
	var out strings.Builder

	out.WriteString(fmt.Sprintf("[%s] %-5s", timestamp, levelNames[level]))
	if l.component != "" {
		out.WriteString(fmt.Sprintf(" [%s]", l.component))
	}
	out.WriteString(" " + msg)

	for k, v := range fields {
		out.WriteString(fmt.Sprintf(" %s=%v", k, v))
	}

	out.WriteString("\n")
	fmt.Fprint(l.output, out.String())
}

// logJSON logs one JSON object per line
func (l *Logger) logJSON(timestamp string, level Level, msg string, fields Fields) {
	entry := map[string]interface{}{
		"timestamp": timestamp,
		"level":     levelNames[level],
		"message":   msg,
	}
	if l.component != "" {
		entry["component"] = l.component
	}
	for k, v := range fields {
		if err, ok := v.(error); ok {
			entry[k] = err.Error()
			continue
		}
		entry[k] = v
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.output, `{"level":"ERROR","message":"failed to encode log entry: %v"}`+"\n", err)
		return
	}
	fmt.Fprintln(l.output, string(data))
}

// parseLevel converts string to Level
func parseLevel(levelStr string) Level {
	switch strings.ToUpper(levelStr) {
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

func mergeFields(fields ...Fields) Fields {
	if len(fields) == 0 {
		return nil
	}
	if len(fields) == 1 {
		return fields[0]
	}
	merged := make(Fields)
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}
	return merged
}
