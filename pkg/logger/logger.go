package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, encoding and destination of the process logger.
type Config struct {
	Level      string // zerolog level name
	Format     string // json | console
	Output     string // stdout | stderr | file path
	TimeFormat string
}

// Logger wraps zerolog. Error entries are additionally handed to the collector when one is attached.
type Logger struct {
	zl        zerolog.Logger
	fields    []Field
	collector *atomic.Pointer[LogCollector]
}

func New(cfg *Config) (*Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		lv, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		level = lv
	}

	w, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	tf := cfg.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = tf
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: tf}
	}

	zl := zerolog.New(w).Level(level).With().Timestamp().CallerWithSkipFrameCount(3).Logger()
	return &Logger{zl: zl, collector: new(atomic.Pointer[LogCollector])}, nil
}

func openOutput(dst string) (io.Writer, error) {
	switch dst {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(dst, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", dst, err)
	}
	return f, nil
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop(), collector: new(atomic.Pointer[LogCollector])}
}

// With returns a child logger carrying fields on every entry. Children share the parent's collector.
func (l *Logger) With(fields ...Field) *Logger {
	zc := l.zl.With()
	for _, f := range fields {
		zc = zc.Interface(f.Key, f.plain())
	}
	all := make([]Field, 0, len(l.fields)+len(fields))
	all = append(append(all, l.fields...), fields...)
	return &Logger{zl: zc.Logger(), fields: all, collector: l.collector}
}

func (l *Logger) Debug(msg string, fields ...Field) { l.write(l.zl.Debug(), msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.write(l.zl.Info(), msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.write(l.zl.Warn(), msg, fields) }

func (l *Logger) Error(msg string, fields ...Field) {
	l.write(l.zl.Error(), msg, fields)
	if c := l.collector.Load(); c != nil {
		c.AddLog("error", msg, l.flatten(fields), callerOf(2))
	}
}

func (l *Logger) write(e *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.addTo(e)
	}
	e.Msg(msg)
}

func (l *Logger) flatten(extra []Field) map[string]interface{} {
	m := make(map[string]interface{}, len(l.fields)+len(extra))
	for _, f := range l.fields {
		m[f.Key] = f.plain()
	}
	for _, f := range extra {
		m[f.Key] = f.plain()
	}
	return m
}

// callerOf reports file:line skip frames above itself, trimmed to the last two path elements.
func callerOf(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	dir, name := filepath.Split(file)
	return fmt.Sprintf("%s/%s:%d", filepath.Base(dir), name, line)
}

// AddCollector ships aggregated error entries through cfg.Publisher, replacing any previous collector.
func (l *Logger) AddCollector(cfg *CollectionConfig) {
	if old := l.collector.Swap(NewLogCollector(cfg)); old != nil {
		old.Close()
	}
}

// RemoveCollector flushes and detaches the collector.
func (l *Logger) RemoveCollector() {
	if old := l.collector.Swap(nil); old != nil {
		old.Close()
	}
}

// Field is a typed key/value pair attached to an entry.
type Field struct {
	Key   string
	Value interface{}
}

func (f Field) addTo(e *zerolog.Event) {
	switch v := f.Value.(type) {
	case string:
		e.Str(f.Key, v)
	case int:
		e.Int(f.Key, v)
	case int64:
		e.Int64(f.Key, v)
	case float64:
		e.Float64(f.Key, v)
	case bool:
		e.Bool(f.Key, v)
	case error:
		e.AnErr(f.Key, v)
	default:
		e.Interface(f.Key, v)
	}
}

// plain is the JSON friendly form used by child contexts and the collector.
func (f Field) plain() interface{} {
	if err, ok := f.Value.(error); ok {
		return err.Error()
	}
	return f.Value
}

func String(key, value string) Field          { return Field{key, value} }
func Int(key string, value int) Field         { return Field{key, value} }
func Int64(key string, value int64) Field     { return Field{key, value} }
func Float64(key string, value float64) Field { return Field{key, value} }
func Bool(key string, value bool) Field       { return Field{key, value} }
func Any(key string, value interface{}) Field { return Field{key, value} }

// Error stores err under "error".
func Error(err error) Field { return Field{"error", err} }

// Duration is logged in milliseconds.
func Duration(key string, d time.Duration) Field { return Field{key, d.Milliseconds()} }

func Strings(key string, values []string) Field { return Field{key, strings.Join(values, ", ")} }
