// Package telemetry provides the production implementations of the core
// Logger and Telemetry interfaces: a structured JSON logger with component
// context, and an OpenTelemetry-backed span and metric sink.
package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/2lab-ai/hal9go/core"
)

// LogLevel orders log severities.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel maps a level name to its LogLevel, defaulting to info.
func ParseLevel(name string) LogLevel {
	switch name {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ProductionLogger writes one JSON object per line with timestamp, level,
// component and caller-supplied fields. Context-aware methods pick up the
// active OpenTelemetry span and attach trace/span ids so logs correlate
// with traces.
type ProductionLogger struct {
	mu        sync.Mutex
	out       io.Writer
	level     LogLevel
	component string
}

// NewProductionLogger logs to stdout at the given level.
func NewProductionLogger(level LogLevel) *ProductionLogger {
	return &ProductionLogger{out: os.Stdout, level: level}
}

// NewProductionLoggerWithOutput logs to a custom writer, mostly for tests.
func NewProductionLoggerWithOutput(out io.Writer, level LogLevel) *ProductionLogger {
	return &ProductionLogger{out: out, level: level}
}

// WithComponent returns a logger that stamps every entry with a component
// name. The underlying writer and level are shared.
func (l *ProductionLogger) WithComponent(component string) core.Logger {
	return &ProductionLogger{out: l.out, level: l.level, component: component}
}

func (l *ProductionLogger) log(ctx context.Context, level LogLevel, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}

	entry := make(map[string]interface{}, len(fields)+5)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["level"] = level.String()
	entry["msg"] = msg
	if l.component != "" {
		entry["component"] = l.component
	}
	if ctx != nil {
		if span := trace.SpanContextFromContext(ctx); span.IsValid() {
			entry["trace_id"] = span.TraceID().String()
			entry["span_id"] = span.SpanID().String()
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(line, '\n'))
}

func (l *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	l.log(nil, LevelInfo, msg, fields)
}

func (l *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	l.log(nil, LevelError, msg, fields)
}

func (l *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	l.log(nil, LevelWarn, msg, fields)
}

func (l *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	l.log(nil, LevelDebug, msg, fields)
}

func (l *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, LevelInfo, msg, fields)
}

func (l *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, LevelError, msg, fields)
}

func (l *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, LevelWarn, msg, fields)
}

func (l *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	l.log(ctx, LevelDebug, msg, fields)
}
