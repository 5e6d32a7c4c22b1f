package log

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/keboola/processing-plant/internal/pkg/encoding/json"
)

// DebugLogger returns logs as string in tests.
type DebugLogger interface {
	Logger
	Truncate()
	// AllMessages returns all JSON lines and clears the buffer.
	AllMessages() string
	// AllMessagesTxt returns all messages in the "LEVEL  message" format and clears the buffer.
	AllMessagesTxt() string
	CompareJSONMessages(expected string) error
	AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool
}

type debugLogger struct {
	*zapLogger
	out *syncBuffer
}

type syncBuffer struct {
	lock *sync.Mutex
	buf  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Sync() error {
	return nil
}

func (b *syncBuffer) takeString() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	out := b.buf.String()
	b.buf.Reset()
	return out
}

// NewDebugLogger creates a logger which collects all messages, including debug messages, as JSON lines in memory.
func NewDebugLogger() DebugLogger {
	out := &syncBuffer{lock: &sync.Mutex{}}
	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{
		LevelKey:       "level",
		MessageKey:     "message",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	})
	core := zapcore.NewCore(encoder, out, DebugLevel)
	return &debugLogger{zapLogger: loggerFromZapCore(core), out: out}
}

func (l *debugLogger) Truncate() {
	l.out.takeString()
}

func (l *debugLogger) AllMessages() string {
	return l.out.takeString()
}

func (l *debugLogger) AllMessagesTxt() string {
	var out strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(l.AllMessages()))
	for scanner.Scan() {
		var record map[string]any
		if err := json.DecodeString(scanner.Text(), &record); err != nil {
			out.WriteString(scanner.Text() + "\n")
			continue
		}
		out.WriteString(fmt.Sprintf("%s  %s\n", strings.ToUpper(fmt.Sprint(record["level"])), record["message"]))
	}
	return out.String()
}

func (l *debugLogger) CompareJSONMessages(expected string) error {
	return CompareJSONMessages(expected, l.AllMessages())
}

func (l *debugLogger) AssertJSONMessages(t assert.TestingT, expected string, msgAndArgs ...any) bool {
	return AssertJSONMessages(t, expected, l.AllMessages(), msgAndArgs...)
}
