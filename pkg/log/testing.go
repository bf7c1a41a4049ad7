package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// syncBuffer guards a bytes.Buffer so that loggers shared by parallel trial
// workers can write to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

// TestLogger captures zerolog JSON lines in memory for later inspection.
//
//	logger := log.NewTestLogger(log.LevelDebug)
//	builder := preprocessing.NewBuilder(preprocessing.WithLogger(logger))
//	...
//	if !logger.ContainsMessage("skipped invalid rows") { ... }
type TestLogger struct {
	*ZerologLogger
	buffer *syncBuffer
}

// NewTestLogger creates a new TestLogger with the specified minimum level.
func NewTestLogger(level Level) *TestLogger {
	buf := &syncBuffer{}
	zl := zerolog.New(buf).Level(toZerologLevel(level))
	return &TestLogger{ZerologLogger: NewZerologLogger(zl), buffer: buf}
}

// With implements Logger.With and keeps writing to the same buffer.
func (t *TestLogger) With(fields ...any) Logger {
	return &TestLogger{
		ZerologLogger: t.ZerologLogger.With(fields...).(*ZerologLogger),
		buffer:        t.buffer,
	}
}

// Enabled implements Logger.Enabled.
func (t *TestLogger) Enabled(ctx context.Context, level Level) bool {
	return t.ZerologLogger.Enabled(ctx, level)
}

// String returns everything captured so far.
func (t *TestLogger) String() string {
	return t.buffer.String()
}

// GetLogEntries parses the captured log output.
func (t *TestLogger) GetLogEntries() ([]map[string]interface{}, error) {
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(t.buffer.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ContainsMessage checks if the captured logs contain a message with the specified content.
func (t *TestLogger) ContainsMessage(message string) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if msg, ok := entry[zerolog.MessageFieldName].(string); ok && strings.Contains(msg, message) {
			return true
		}
	}
	return false
}

// ContainsField checks if any entry carries key with the given value.
// Numbers decode as float64.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.GetLogEntries()
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if fieldValue, exists := entry[key]; exists && fieldValue == value {
			return true
		}
	}
	return false
}

// CountLevel returns how many entries were logged at level ("debug", "warn", ...).
func (t *TestLogger) CountLevel(level string) int {
	entries, err := t.GetLogEntries()
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if entry[zerolog.LevelFieldName] == level {
			n++
		}
	}
	return n
}

// Clear clears all captured log content.
func (t *TestLogger) Clear() {
	t.buffer.Reset()
}

// TestLoggerProvider implements LoggerProvider for testing scenarios.
type TestLoggerProvider struct {
	logger *TestLogger
}

// NewTestLoggerProvider creates a new test logger provider.
func NewTestLoggerProvider(level Level) *TestLoggerProvider {
	return &TestLoggerProvider{logger: NewTestLogger(level)}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *TestLoggerProvider) GetLogger() Logger {
	return p.logger
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *TestLoggerProvider) GetLoggerWithName(name string) Logger {
	return p.logger.With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *TestLoggerProvider) SetLevel(level Level) {
	p.logger.ZerologLogger = NewZerologLogger(p.logger.zl.Level(toZerologLevel(level)))
}

// Logger returns the captured logger.
func (p *TestLoggerProvider) Logger() *TestLogger {
	return p.logger
}
