package buffer

import "time"

// StreamKind identifies which output stream of a process a chunk came from.
type StreamKind string

const (
	StreamStdout StreamKind = "stdout"
	StreamStderr StreamKind = "stderr"
)

// IsValidStreamKind checks if the stream kind is one we capture
func IsValidStreamKind(k StreamKind) bool {
	return k == StreamStdout || k == StreamStderr
}

// Chunk is one filtered, sequenced unit of process output. Chunks are
// immutable once created; sequence numbers are monotonically increasing
// per (process, stream kind) and are never reused or skipped.
type Chunk struct {
	ProcessID string     `json:"process_id"`
	Kind      StreamKind `json:"stream_kind"`
	Sequence  int64      `json:"sequence"`
	Payload   []byte     `json:"payload,omitempty"`
	Timestamp time.Time  `json:"timestamp"`

	// EOF marks the terminal chunk for a stream. It carries no payload and
	// lets a subscriber distinguish "stream ended cleanly" from a dropped
	// connection.
	EOF bool `json:"eof,omitempty"`
}
