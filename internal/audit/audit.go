// Package audit provides an append-only trail of ledger mutations.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Trade events
	TradeOpened    EventType = "TRADE_OPENED"
	TradeClosed    EventType = "TRADE_CLOSED"
	TradeCancelled EventType = "TRADE_CANCELLED"
	TradeRejected  EventType = "TRADE_REJECTED"

	// Session events
	SessionStarted   EventType = "SESSION_STARTED"
	SessionPaused    EventType = "SESSION_PAUSED"
	SessionResumed   EventType = "SESSION_RESUMED"
	SessionCompleted EventType = "SESSION_COMPLETED"

	// Qualification and privacy events
	ModuleCompleted EventType = "MODULE_COMPLETED"
	UserErased      EventType = "USER_ERASED"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	TradeID   string                 `json:"trade_id,omitempty"`
	Symbol    string                 `json:"symbol,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error,omitempty"`
}

// Sink records audit events.
type Sink interface {
	Log(ctx context.Context, event Event) error
}

// Config holds audit logger configuration.
type Config struct {
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultConfig returns the default audit configuration.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		LogDir:     filepath.Join(home, ".config", "paper-ledger", "audit"),
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	}
}

// Logger writes audit events as JSON lines.
type Logger struct {
	mu     sync.Mutex
	writer io.WriteCloser
	now    func() time.Time
}

// NewLogger creates an audit logger writing to a rotated audit.log in cfg.LogDir.
func NewLogger(cfg Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	return &Logger{
		writer: &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "audit.log"),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		},
		now: time.Now,
	}, nil
}

// Log writes one audit event.
func (l *Logger) Log(ctx context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}

	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// Close closes the audit logger.
func (l *Logger) Close() error {
	return l.writer.Close()
}

// Nop discards every event.
type Nop struct{}

// Log implements Sink.
func (Nop) Log(context.Context, Event) error { return nil }

// Memory keeps events in memory; used in tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// Log implements Sink.
func (m *Memory) Log(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Count returns how many events of the given type were recorded.
func (m *Memory) Count(t EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.EventType == t {
			n++
		}
	}
	return n
}
