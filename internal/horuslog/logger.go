// Package horuslog is HORUS's structured, leveled, field-based logger.
//
// Grounded on the teacher's kernel/utils/logger.go: a hand-rolled
// Field/Logger pair rather than a logging library, which is the teacher's
// actual idiom for this concern (zap never appears as a direct import
// anywhere in the pack, only transitively via go-libp2p).
package horuslog

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is logging severity, ordered low to high plus a Quiet sink level.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Quiet // suppresses all console output; sinks still fire
)

var levelNames = map[Level]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
	Quiet: "QUIET",
}

var levelColors = map[Level]string{
	Debug: "\033[36m",
	Info:  "\033[32m",
	Warn:  "\033[33m",
	Error: "\033[31m",
}

const colorReset = "\033[0m"

// ParseLevel parses HORUS_LOG_LEVEL values (case-insensitive).
func ParseLevel(s string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return Debug, true
	case "INFO":
		return Info, true
	case "WARN":
		return Warn, true
	case "ERROR":
		return Error, true
	case "QUIET":
		return Quiet, true
	default:
		return Info, false
	}
}

// Field is a structured key/value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field          { return Field{key, value} }
func Int(key string, value int) Field         { return Field{key, value} }
func Int64(key string, value int64) Field     { return Field{key, value} }
func Uint64(key string, value uint64) Field   { return Field{key, value} }
func Uint32(key string, value uint32) Field   { return Field{key, value} }
func Float64(key string, value float64) Field { return Field{key, value} }
func Bool(key string, value bool) Field       { return Field{key, value} }
func Duration(key string, value time.Duration) Field {
	return Field{key, value}
}
func Any(key string, value any) Field { return Field{key, value} }
func Err(err error) Field             { return Field{"error", err} }

func (f Field) format() string {
	switch v := f.Value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	case time.Duration:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Sink receives every emitted record regardless of console level — the
// mechanism by which the Log Buffer stays populated even when console
// output is suppressed (spec §4.7, "dashboard-resilient" open question).
type Sink interface {
	WriteLog(level Level, component, message string, fields []Field)
}

// Config configures a Logger instance.
type Config struct {
	Level      Level
	Component  string
	Output     io.Writer
	Colorize   bool
	ShowCaller bool
	TimeFormat string
	Sink       Sink
}

// Logger provides structured, leveled logging with an always-on sink.
type Logger struct {
	mu         sync.Mutex
	level      Level
	component  string
	output     io.Writer
	colorize   bool
	showCaller bool
	timeFormat string
	sink       Sink
}

// New creates a Logger from Config, filling in sensible defaults.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = "15:04:05.000"
	}
	return &Logger{
		level:      cfg.Level,
		component:  cfg.Component,
		output:     cfg.Output,
		colorize:   cfg.Colorize,
		showCaller: cfg.ShowCaller,
		timeFormat: cfg.TimeFormat,
		sink:       cfg.Sink,
	}
}

// Default creates a Logger for component with INFO level, colorized stdout.
func Default(component string) *Logger {
	return New(Config{Level: Info, Component: component, Colorize: true})
}

// With returns a logger for a different component sharing this logger's
// sink, level, and output — used so every subsystem gets its own component
// tag while all records still reach the same Log Buffer sink.
func (l *Logger) With(component string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{
		level:      l.level,
		component:  component,
		output:     l.output,
		colorize:   l.colorize,
		showCaller: l.showCaller,
		timeFormat: l.timeFormat,
		sink:       l.sink,
	}
}

// SetSink attaches (or replaces) the always-on sink.
func (l *Logger) SetSink(sink Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sink = sink
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(Debug, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(Info, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(Warn, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(Error, msg, fields...) }

func (l *Logger) log(level Level, msg string, fields ...Field) {
	l.mu.Lock()
	sink := l.sink
	component := l.component
	belowLevel := level < l.level
	l.mu.Unlock()

	// The sink always fires, independent of console gating (spec §4.7).
	if sink != nil {
		sink.WriteLog(level, component, msg, fields)
	}

	if belowLevel || l.level == Quiet {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	if l.colorize {
		b.WriteString(levelColors[level])
	}
	b.WriteString("[")
	b.WriteString(time.Now().Format(l.timeFormat))
	b.WriteString("] [")
	b.WriteString(fmt.Sprintf("%-5s", levelNames[level]))
	b.WriteString("] ")
	if l.component != "" {
		b.WriteString("[")
		b.WriteString(l.component)
		b.WriteString("] ")
	}
	b.WriteString(msg)
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(f.format())
	}
	if l.colorize {
		b.WriteString(colorReset)
	}
	b.WriteString("\n")
	l.output.Write([]byte(b.String()))
}
