package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log severity levels
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if l < DEBUG || l > FATAL {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel converts a string to a Level. Unknown strings map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DEBUG
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

// field is a single key/value bound to a logger. Fields are kept as an
// ordered slice so output preserves the order they were attached in.
type field struct {
	key   string
	value interface{}
}

// Logger is a structured key/value logger. Derived loggers share the
// output writer; the mutex serializes writes across the family.
type Logger struct {
	mu        *sync.Mutex
	output    io.Writer
	level     Level
	component string
	bound     []field
	jsonOut   bool
}

// Config holds logger configuration
type Config struct {
	Level      string `json:"level"`
	Output     string `json:"output"` // "stdout", "stderr", or file path
	Component  string `json:"component"`
	JSONFormat bool   `json:"json_format"`
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// New creates a logger from the given configuration. A file output that
// cannot be opened falls back to stdout rather than failing startup.
func New(cfg *Config) *Logger {
	var output io.Writer = os.Stdout
	switch cfg.Output {
	case "", "stdout":
	case "stderr":
		output = os.Stderr
	default:
		if file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			output = file
		}
	}

	return &Logger{
		mu:        &sync.Mutex{},
		output:    output,
		level:     ParseLevel(cfg.Level),
		component: cfg.Component,
		jsonOut:   cfg.JSONFormat,
	}
}

// Default returns the process-wide logger instance
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(&Config{Level: "INFO", Component: "app", JSONFormat: true})
	})
	return defaultLogger
}

// SetDefault replaces the process-wide logger
func SetDefault(l *Logger) {
	defaultLogger = l
}

// child copies the logger so bound fields never leak back to the parent
func (l *Logger) child(extra int) *Logger {
	bound := make([]field, len(l.bound), len(l.bound)+extra)
	copy(bound, l.bound)
	return &Logger{
		mu:        l.mu,
		output:    l.output,
		level:     l.level,
		component: l.component,
		bound:     bound,
		jsonOut:   l.jsonOut,
	}
}

// WithComponent returns a logger tagged with the given component name
func (l *Logger) WithComponent(component string) *Logger {
	c := l.child(0)
	c.component = component
	return c
}

// WithField returns a logger with one additional bound field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	c := l.child(1)
	c.bound = append(c.bound, field{key, value})
	return c
}

// WithFields returns a logger with the map's entries bound in key order
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c := l.child(len(keys))
	for _, k := range keys {
		c.bound = append(c.bound, field{k, fields[k]})
	}
	return c
}

// WithError returns a logger with the error bound under "error".
// A nil error returns the receiver unchanged.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// emit renders one record. args are alternating key/value pairs appended
// after the bound fields; a trailing key without a value is dropped.
func (l *Logger) emit(level Level, msg string, args []interface{}) {
	if level < l.level {
		return
	}

	fields := make([]field, len(l.bound), len(l.bound)+len(args)/2)
	copy(fields, l.bound)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		value := args[i+1]
		if err, isErr := value.(error); isErr && err != nil {
			value = err.Error()
		}
		fields = append(fields, field{key, value})
	}

	ts := time.Now().UTC()

	var line []byte
	if l.jsonOut {
		line = renderJSON(ts, level, l.component, msg, fields)
	} else {
		line = renderText(ts, level, l.component, msg, fields)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write(line)
}

// renderJSON writes a flat single-line object with the fixed keys first
// and the fields inlined after them in attachment order.
func renderJSON(ts time.Time, level Level, component, msg string, fields []field) []byte {
	var b bytes.Buffer
	b.WriteString(`{"ts":"`)
	b.WriteString(ts.Format(time.RFC3339Nano))
	b.WriteString(`","level":"`)
	b.WriteString(level.String())
	b.WriteByte('"')

	if component != "" {
		b.WriteString(`,"component":`)
		writeJSONValue(&b, component)
	}
	b.WriteString(`,"msg":`)
	writeJSONValue(&b, msg)

	for _, f := range fields {
		b.WriteByte(',')
		writeJSONValue(&b, f.key)
		b.WriteByte(':')
		writeJSONValue(&b, f.value)
	}
	b.WriteString("}\n")
	return b.Bytes()
}

func writeJSONValue(b *bytes.Buffer, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		data, _ = json.Marshal(fmt.Sprintf("%v", v))
	}
	b.Write(data)
}

func renderText(ts time.Time, level Level, component, msg string, fields []field) []byte {
	var b bytes.Buffer
	b.WriteString(ts.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, " [%-5s] ", level.String())
	if component != "" {
		fmt.Fprintf(&b, "[%s] ", component)
	}
	b.WriteString(msg)
	for i, f := range fields {
		if i == 0 {
			b.WriteString(" | ")
		} else {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s=%v", f.key, f.value)
	}
	b.WriteByte('\n')
	return b.Bytes()
}

// Debug logs at DEBUG level with optional key/value pairs
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.emit(DEBUG, msg, args)
}

// Info logs at INFO level with optional key/value pairs
func (l *Logger) Info(msg string, args ...interface{}) {
	l.emit(INFO, msg, args)
}

// Warn logs at WARN level with optional key/value pairs
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.emit(WARN, msg, args)
}

// Error logs at ERROR level with optional key/value pairs
func (l *Logger) Error(msg string, args ...interface{}) {
	l.emit(ERROR, msg, args)
}

// Fatal logs at FATAL level and terminates the process
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.emit(FATAL, msg, args)
	os.Exit(1)
}
