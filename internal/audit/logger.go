package audit

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Operation represents the type of auditable operation
type Operation string

const (
	OpProcessLaunch    Operation = "process.launch"
	OpProcessTerminate Operation = "process.terminate"
	OpProcessRestart   Operation = "process.restart"
	OpFilterMatch      Operation = "filter.match"
	OpTokenCreate      Operation = "token.create"
	OpTokenRevoke      Operation = "token.revoke"
	OpScheduleCreate   Operation = "schedule.create"
	OpScheduleDelete   Operation = "schedule.delete"
)

// Event represents an audit log entry
type Event struct {
	Timestamp  time.Time              `json:"timestamp"`
	Operation  Operation              `json:"operation"`
	TokenID    string                 `json:"token_id,omitempty"`
	TokenScope string                 `json:"token_scope,omitempty"`
	ProcessID  string                 `json:"process_id,omitempty"`
	StreamKind string                 `json:"stream_kind,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Logger handles audit logging
type Logger struct {
	logger  *slog.Logger
	enabled bool
	mu      sync.RWMutex
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Default returns the default audit logger
func Default() *Logger {
	once.Do(func() {
		defaultLogger = New(true)
	})
	return defaultLogger
}

// New creates a new audit logger
func New(enabled bool) *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return &Logger{
		logger:  slog.New(handler),
		enabled: enabled,
	}
}

// SetEnabled enables or disables audit logging
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
}

// Log records an audit event
func (l *Logger) Log(event *Event) {
	l.mu.RLock()
	enabled := l.enabled
	l.mu.RUnlock()

	if !enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	attrs := []any{
		slog.String("audit", "true"),
		slog.String("operation", string(event.Operation)),
		slog.Bool("success", event.Success),
	}

	if event.TokenID != "" {
		attrs = append(attrs, slog.String("token_id", maskToken(event.TokenID)))
	}
	if event.TokenScope != "" {
		attrs = append(attrs, slog.String("token_scope", event.TokenScope))
	}
	if event.ProcessID != "" {
		attrs = append(attrs, slog.String("process_id", event.ProcessID))
	}
	if event.StreamKind != "" {
		attrs = append(attrs, slog.String("stream_kind", event.StreamKind))
	}
	if event.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", event.RequestID))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.Details != nil {
		detailsJSON, _ := json.Marshal(event.Details)
		attrs = append(attrs, slog.String("details", string(detailsJSON)))
	}

	l.logger.Info("AUDIT", attrs...)
}

// LogSuccess records a successful operation
func (l *Logger) LogSuccess(op Operation, tokenID, tokenScope, processID string) {
	l.Log(&Event{
		Operation:  op,
		TokenID:    tokenID,
		TokenScope: tokenScope,
		ProcessID:  processID,
		Success:    true,
	})
}

// LogFailure records a failed operation
func (l *Logger) LogFailure(op Operation, tokenID, tokenScope, processID string, err error) {
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	l.Log(&Event{
		Operation:  op,
		TokenID:    tokenID,
		TokenScope: tokenScope,
		ProcessID:  processID,
		Success:    false,
		Error:      errMsg,
	})
}

// LogFilterMatch records that a sensitive redaction rule matched process
// output. The pattern is recorded, never the matched content.
func (l *Logger) LogFilterMatch(processID, streamKind, pattern string, count int) {
	l.Log(&Event{
		Operation:  OpFilterMatch,
		ProcessID:  processID,
		StreamKind: streamKind,
		Success:    true,
		Details: map[string]interface{}{
			"pattern": pattern,
			"count":   count,
		},
	})
}

func maskToken(tokenID string) string {
	if len(tokenID) <= 12 {
		return "***"
	}
	return tokenID[:8] + "..."
}

// Convenience functions using default logger

func Log(event *Event) {
	Default().Log(event)
}

func LogSuccess(op Operation, tokenID, tokenScope, processID string) {
	Default().LogSuccess(op, tokenID, tokenScope, processID)
}

func LogFailure(op Operation, tokenID, tokenScope, processID string, err error) {
	Default().LogFailure(op, tokenID, tokenScope, processID, err)
}

func LogFilterMatch(processID, streamKind, pattern string, count int) {
	Default().LogFilterMatch(processID, streamKind, pattern, count)
}
