package stream

import (
	"fmt"
	"time"

	"github.com/yte121/openswarm/internal/buffer"
	"github.com/yte121/openswarm/internal/process"
)

// MessageType discriminates control-plane messages from data chunks on
// a subscriber channel.
type MessageType string

const (
	TypeData      MessageType = "data"
	TypeGap       MessageType = "gap"
	TypeEOF       MessageType = "eof"
	TypeLifecycle MessageType = "lifecycle"
)

// Message is the unit delivered to subscribers. Data and eof messages
// carry a sequence from the stream's ring; gap messages report evicted
// history; lifecycle messages describe process state transitions and
// carry no sequence.
type Message struct {
	Type         MessageType       `json:"type"`
	ProcessID    string            `json:"processId"`
	StreamKind   buffer.StreamKind `json:"streamKind,omitempty"`
	Sequence     int64             `json:"sequence"`
	Payload      string            `json:"payload,omitempty"`
	Timestamp    int64             `json:"timestamp"`
	DroppedCount int64             `json:"droppedCount,omitempty"`

	// Lifecycle fields, set only on TypeLifecycle messages.
	State         process.State `json:"state,omitempty"`
	ExitCode      *int          `json:"exitCode,omitempty"`
	Signal        string        `json:"signal,omitempty"`
	RestartedFrom string        `json:"restartedFrom,omitempty"`
}

func chunkMessage(c *buffer.Chunk) Message {
	msg := Message{
		Type:       TypeData,
		ProcessID:  c.ProcessID,
		StreamKind: c.Kind,
		Sequence:   c.Sequence,
		Timestamp:  c.Timestamp.UnixMilli(),
	}
	if c.EOF {
		msg.Type = TypeEOF
	} else {
		msg.Payload = string(c.Payload)
	}
	return msg
}

func gapMessage(processID string, kind buffer.StreamKind, resumeAt, missed int64) Message {
	return Message{
		Type:         TypeGap,
		ProcessID:    processID,
		StreamKind:   kind,
		Sequence:     resumeAt,
		Timestamp:    time.Now().UnixMilli(),
		DroppedCount: missed,
	}
}

func lifecycleMessage(ev process.LifecycleEvent) Message {
	msg := Message{
		Type:          TypeLifecycle,
		ProcessID:     ev.ProcessID,
		Timestamp:     ev.Timestamp.UnixMilli(),
		State:         ev.State,
		Signal:        ev.Signal,
		RestartedFrom: ev.RestartedFrom,
	}
	if ev.State.Terminal() {
		code := ev.ExitCode
		msg.ExitCode = &code
	}
	return msg
}

// Policy selects what happens to a subscriber whose queue is full.
type Policy string

const (
	// PolicyDropOldest discards the oldest queued message to make room,
	// reporting the count on the next delivered message.
	PolicyDropOldest Policy = "drop-oldest"

	// PolicyDisconnect forcibly unsubscribes the slow client with an
	// OverflowError.
	PolicyDisconnect Policy = "disconnect-on-overflow"
)

// ParsePolicy validates a policy string. Empty selects the default.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "":
		return PolicyDropOldest, nil
	case PolicyDropOldest, PolicyDisconnect:
		return Policy(s), nil
	}
	return "", fmt.Errorf("unknown subscriber policy %q", s)
}

// OverflowError reports that a subscriber was evicted because its queue
// overflowed under PolicyDisconnect.
type OverflowError struct {
	ClientID  string
	QueueSize int
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("subscriber %s disconnected: send queue overflow (capacity %d)", e.ClientID, e.QueueSize)
}
