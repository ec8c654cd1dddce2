// Package weblog layers a bounded, streamable log ring on top of the file
// logger. Every line written through Log lands in the service log file and in
// the in-memory ring that backs the /logs endpoint and the WebSocket stream.
package weblog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"
)

// HistoryCapacity is the bounded size of the log ring. The oldest entry is
// evicted on overflow.
const HistoryCapacity = 1000

// Log levels as they appear in streamed entries.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

const timestampLayout = "15:04:05.000"

var levelRank = map[string]int32{
	"DEBUG":      0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// Entry is one captured log line.
type Entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Module    string `json:"module"`
}

// Buffer is the shared bounded ring of log entries with subscriber fanout.
// Safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	subs     map[chan Entry]struct{}
}

// NewBuffer creates a ring with the given capacity; zero or negative falls
// back to HistoryCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = HistoryCapacity
	}

	return &Buffer{
		entries:  make([]Entry, 0, capacity),
		capacity: capacity,
		subs:     make(map[chan Entry]struct{}),
	}
}

// Append records an entry, evicting the oldest when full, and fans it out to
// subscribers. Slow subscribers drop entries rather than block logging.
func (b *Buffer) Append(entry Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.entries) == b.capacity {
		b.entries = append(b.entries[:0], b.entries[1:]...)
	}

	b.entries = append(b.entries, entry)

	for sub := range b.subs {
		select {
		case sub <- entry:
		default:
		}
	}
}

// History returns a copy of the buffered entries, oldest first.
func (b *Buffer) History() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	history := make([]Entry, len(b.entries))
	copy(history, b.entries)

	return history
}

// Subscribe registers a fanout channel. The returned cancel function must be
// called to release it.
func (b *Buffer) Subscribe() (<-chan Entry, func()) {
	sub := make(chan Entry, 64)

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	}

	return sub, cancel
}

// Log writes to the underlying file logger and mirrors every line into the
// ring. Components hold a *Log the way the file logger is normally injected.
type Log struct {
	file     *logger.Logger
	buffer   *Buffer
	module   string
	minLevel *atomic.Int32
}

// New creates a Log for one module name. The file logger may be shared across
// modules; the buffer must be the process-wide ring.
func New(file *logger.Logger, buffer *Buffer, module string) *Log {
	minLevel := new(atomic.Int32)
	minLevel.Store(levelRank[LevelInfo])

	return &Log{
		file:     file,
		buffer:   buffer,
		module:   module,
		minLevel: minLevel,
	}
}

// Named returns a Log that shares the sinks, threshold and a different module
// name.
func (l *Log) Named(module string) *Log {
	return &Log{
		file:     l.file,
		buffer:   l.buffer,
		module:   module,
		minLevel: l.minLevel,
	}
}

// SetLevel changes the ring threshold for this Log and all Named clones.
// Unknown names are ignored. The file logger always receives every line.
func (l *Log) SetLevel(level string) {
	rank, ok := levelRank[level]
	if !ok {
		return
	}

	l.minLevel.Store(rank)
}

// Buffer exposes the ring for the HTTP surface.
func (l *Log) Buffer() *Buffer {
	return l.buffer
}

// Info logs an informational line.
func (l *Log) Info(format string, args ...any) {
	l.file.Info(format, args...)
	l.record(LevelInfo, format, args...)
}

// Warn logs a warning line.
func (l *Log) Warn(format string, args ...any) {
	l.file.Warn(format, args...)
	l.record(LevelWarning, format, args...)
}

// Error logs an error line.
func (l *Log) Error(format string, args ...any) {
	l.file.Error(format, args...)
	l.record(LevelError, format, args...)
}

func (l *Log) record(level, format string, args ...any) {
	if levelRank[level] < l.minLevel.Load() {
		return
	}

	l.buffer.Append(Entry{
		Timestamp: time.Now().Format(timestampLayout),
		Level:     level,
		Message:   fmt.Sprintf(format, args...),
		Module:    l.module,
	})
}
