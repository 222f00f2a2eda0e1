package buffer

import (
	"fmt"
	"sync"
	"time"
)

/*
RING BUFFER FOR PROCESS OUTPUT CHUNKS

One Ring holds the recent output of a single (process, stream kind) pair
with support for late-subscriber replay via sequence-based cursors.

DATA STRUCTURE:

    Logical view (sequences are monotonically increasing):
    ┌──────────────────────────────────────────────────────────────┐
    │ ... [evicted] ... │ start │ chunk │ chunk │ ... │ next-1 │
    └──────────────────────────────────────────────────────────────┘
                         ↑                              ↑
                         └── oldest retained chunk      └── newest chunk

    Physical storage (slice that grows up to the configured bound, then
    shifts): chunks[0..len-1] maps to sequences [start..start+len-1]

REPLAY PROTOCOL:

    A subscriber holds a cursor (next sequence expected) and calls
    From(cursor). If the cursor has fallen behind the retained window the
    call fails with a *GapError naming how many sequences were missed.
    Callers must surface the gap, never silently serve truncated data.

BOUNDS:

    Capacity is bounded by chunk count, byte total, or both. Whichever
    bound trips first evicts the oldest chunk. Evicted sequences are
    irrecoverable.

THREAD SAFETY:

    Single writer (the interceptor that owns the sequence space), many
    concurrent readers. Append takes the exclusive lock; all reads take
    the shared lock. The writer never waits on a reader beyond lock hold
    times, so a slow subscriber cannot stall capture.
*/

// Ring configuration defaults
const (
	DefaultMaxChunks = 1000
)

// Stats contains a snapshot of ring occupancy for diagnostics.
type Stats struct {
	ProcessID     string     `json:"process_id"`
	Kind          StreamKind `json:"stream_kind"`
	CurrentChunks int        `json:"current_chunks"`
	CurrentBytes  int64      `json:"current_bytes"`
	MaxChunks     int        `json:"max_chunks"`
	MaxBytes      int64      `json:"max_bytes,omitempty"`
	Oldest        int64      `json:"oldest_sequence"`
	Newest        int64      `json:"newest_sequence"`
	Evicted       int64      `json:"evicted_chunks"`
}

// GapError reports that a requested sequence is older than the oldest
// retained chunk. Recoverable by re-reading from Oldest().
type GapError struct {
	Requested int64
	Oldest    int64
	Missed    int64
}

func (e *GapError) Error() string {
	return fmt.Sprintf("chunks before sequence %d have been evicted (oldest available: %d, missed: %d)",
		e.Requested, e.Oldest, e.Missed)
}

// Ring is a bounded chunk store for one (process, stream kind) pair.
type Ring struct {
	processID string
	kind      StreamKind
	chunks    []*Chunk
	maxChunks int
	maxBytes  int64 // 0 = unbounded by bytes
	curBytes  int64
	start     int64 // sequence of the first retained chunk
	next      int64 // next sequence to assign
	evicted   int64
	mu        sync.RWMutex
}

// NewRing creates a ring for the given process and stream kind. maxChunks
// defaults to DefaultMaxChunks when non-positive; maxBytes of 0 disables
// the byte bound.
func NewRing(processID string, kind StreamKind, maxChunks int, maxBytes int64) *Ring {
	if maxChunks <= 0 {
		maxChunks = DefaultMaxChunks
	}
	return &Ring{
		processID: processID,
		kind:      kind,
		chunks:    make([]*Chunk, 0, maxChunks),
		maxChunks: maxChunks,
		maxBytes:  maxBytes,
	}
}

// Append stores a new chunk, assigning it the next sequence number, and
// returns it. Evicts oldest chunks first when a bound is reached. A
// payload larger than the byte bound on its own is truncated to fit, so
// the ring never holds more than maxBytes.
func (r *Ring) Append(payload []byte, eof bool) *Chunk {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxBytes > 0 && int64(len(payload)) > r.maxBytes {
		payload = payload[:r.maxBytes]
	}

	c := &Chunk{
		ProcessID: r.processID,
		Kind:      r.kind,
		Sequence:  r.next,
		Payload:   payload,
		Timestamp: time.Now(),
		EOF:       eof,
	}
	r.next++

	for len(r.chunks) > 0 &&
		(len(r.chunks) >= r.maxChunks || (r.maxBytes > 0 && r.curBytes+int64(len(payload)) > r.maxBytes)) {
		r.curBytes -= int64(len(r.chunks[0].Payload))
		r.chunks = r.chunks[1:]
		r.start++
		r.evicted++
	}

	r.chunks = append(r.chunks, c)
	r.curBytes += int64(len(payload))
	return c
}

// From returns all retained chunks with sequence >= seq, in order.
// Returns a *GapError if seq precedes the oldest retained chunk.
// A seq at or past the write head returns an empty slice.
func (r *Ring) From(seq int64) ([]*Chunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if seq < r.start {
		return nil, &GapError{Requested: seq, Oldest: r.start, Missed: r.start - seq}
	}

	offset := seq - r.start
	if offset >= int64(len(r.chunks)) {
		return []*Chunk{}, nil
	}

	// Copy so callers never observe slice mutation after the lock drops.
	result := make([]*Chunk, int64(len(r.chunks))-offset)
	copy(result, r.chunks[offset:])
	return result, nil
}

// Oldest returns the sequence of the oldest retained chunk. When the ring
// is empty it equals the next sequence to be assigned, so From(Oldest())
// is always gap-free.
func (r *Ring) Oldest() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.start
}

// Newest returns the sequence of the most recent chunk, or -1 if nothing
// has ever been appended.
func (r *Ring) Newest() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.next - 1
}

// Len returns the number of chunks currently retained.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}

// Evicted returns the count of chunks dropped to honor the capacity bounds.
func (r *Ring) Evicted() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.evicted
}

// ProcessID returns the process this ring buffers output for.
func (r *Ring) ProcessID() string {
	return r.processID
}

// Kind returns the stream kind this ring buffers.
func (r *Ring) Kind() StreamKind {
	return r.kind
}

// Stats returns a snapshot of the ring's occupancy.
func (r *Ring) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		ProcessID:     r.processID,
		Kind:          r.kind,
		CurrentChunks: len(r.chunks),
		CurrentBytes:  r.curBytes,
		MaxChunks:     r.maxChunks,
		MaxBytes:      r.maxBytes,
		Oldest:        r.start,
		Newest:        r.next - 1,
		Evicted:       r.evicted,
	}
}

// Clear releases all retained chunks. Sequence numbering is preserved so
// existing cursors stay valid (they will observe a gap, not wrong data).
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted += int64(len(r.chunks))
	r.start = r.next
	r.chunks = r.chunks[:0]
	r.curBytes = 0
}
