package intercept

import (
	"context"
	"io"
	"time"

	"github.com/yte121/openswarm/internal/audit"
	"github.com/yte121/openswarm/internal/buffer"
	"github.com/yte121/openswarm/internal/filter"
	"github.com/yte121/openswarm/internal/logger"
	"github.com/yte121/openswarm/internal/metrics"
)

/*
OUTPUT INTERCEPTION PIPELINE

One Interceptor owns the raw output stream of a single (process, stream
kind) pair and is the only writer to that pair's ring buffer:

    raw stream ──> reassembly ──> filter chain ──> ring ──> notifier
                   (newline or
                    timeout flush)

Reassembly exists so a redaction match can never be split across read
boundaries: fragments accumulate until a newline arrives, the flush
interval elapses, or the pending window exceeds its cap. Only then does
a unit enter the filter pipeline.

Filtering happens strictly before buffering. A unit that fails the
filter chain is withheld entirely (fail closed), so no subscriber can
observe unredacted content, even transiently. Withheld units consume no
sequence number.

On end-of-data the interceptor flushes whatever is pending and appends
a terminal marker chunk with an empty payload, so subscribers can tell
"stream ended" apart from "connection dropped".
*/

const (
	// DefaultFlushInterval bounds how long a partial line sits in the
	// reassembly window before being flushed anyway.
	DefaultFlushInterval = 200 * time.Millisecond

	// DefaultMaxUnit caps the reassembly window for streams that never
	// emit a newline.
	DefaultMaxUnit = 64 * 1024

	readChunkSize = 32 * 1024
)

// Notifier is told when a new chunk is available for a stream. The
// multiplexer implements this; implementations must not block.
type Notifier interface {
	ChunkAvailable(processID string, kind buffer.StreamKind)
}

// Interceptor consumes one raw output stream, applies the redaction
// pipeline, and writes sequenced chunks into the stream's ring buffer.
type Interceptor struct {
	processID     string
	kind          buffer.StreamKind
	ring          *buffer.Ring
	chain         *filter.Chain
	notifier      Notifier
	flushInterval time.Duration
	maxUnit       int
	evicted       int64
}

// Options tunes interceptor behavior. Zero values select defaults.
type Options struct {
	FlushInterval time.Duration
	MaxUnit       int
}

// New creates an interceptor for one (process, stream kind) pair. The
// chain may be nil, in which case output passes through unredacted.
func New(ring *buffer.Ring, chain *filter.Chain, notifier Notifier, opts Options) *Interceptor {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	if opts.MaxUnit <= 0 {
		opts.MaxUnit = DefaultMaxUnit
	}
	return &Interceptor{
		processID:     ring.ProcessID(),
		kind:          ring.Kind(),
		ring:          ring,
		chain:         chain,
		notifier:      notifier,
		flushInterval: opts.FlushInterval,
		maxUnit:       opts.MaxUnit,
	}
}

// Run consumes the raw stream until end-of-data or context cancellation.
// It always appends the terminal marker chunk before returning, so
// subscribers observe a clean end even when the read side failed.
// Blocks until the stream is drained; callers run it in its own goroutine.
func (ic *Interceptor) Run(ctx context.Context, raw io.Reader) error {
	frags := make(chan []byte, 16)
	readErr := make(chan error, 1)

	go func() {
		defer close(frags)
		buf := make([]byte, readChunkSize)
		for {
			n, err := raw.Read(buf)
			if n > 0 {
				frag := make([]byte, n)
				copy(frag, buf[:n])
				select {
				case frags <- frag:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF {
					readErr <- err
				}
				return
			}
		}
	}()

	var pending []byte
	timer := time.NewTimer(ic.flushInterval)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	timerArmed := false

	for {
		select {
		case frag, ok := <-frags:
			if !ok {
				if len(pending) > 0 {
					ic.emit(pending)
				}
				ic.emitEOF()
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			pending = append(pending, frag...)
			pending = ic.flushComplete(pending)
			for len(pending) >= ic.maxUnit {
				ic.emit(pending[:ic.maxUnit:ic.maxUnit])
				pending = pending[ic.maxUnit:]
			}
			if timerArmed {
				if !timer.Stop() {
					<-timer.C
				}
				timerArmed = false
			}
			if len(pending) > 0 {
				timer.Reset(ic.flushInterval)
				timerArmed = true
			}

		case <-timer.C:
			timerArmed = false
			if len(pending) > 0 {
				ic.emit(pending)
				pending = nil
			}

		case <-ctx.Done():
			if len(pending) > 0 {
				ic.emit(pending)
			}
			ic.emitEOF()
			return ctx.Err()
		}
	}
}

// flushComplete emits everything up to and including the last newline
// in pending and returns the remaining partial line.
func (ic *Interceptor) flushComplete(pending []byte) []byte {
	last := -1
	for i := len(pending) - 1; i >= 0; i-- {
		if pending[i] == '\n' {
			last = i
			break
		}
	}
	if last < 0 {
		return pending
	}
	ic.emit(pending[:last+1])
	rest := make([]byte, len(pending)-last-1)
	copy(rest, pending[last+1:])
	return rest
}

// emit runs one reassembled unit through the filter chain and appends
// the result to the ring. Units that fail filtering are withheld.
func (ic *Interceptor) emit(unit []byte) {
	filtered, matches, err := ic.chain.Apply(unit)
	if err != nil {
		metrics.FilterErrors.Inc()
		logger.Error("withholding %d bytes of %s output for process %s: %v",
			len(unit), ic.kind, ic.processID, err)
		return
	}

	for _, m := range matches {
		metrics.FilterMatches.Add(float64(m.Count))
		if m.Sensitive {
			audit.LogFilterMatch(ic.processID, string(ic.kind), m.Pattern, m.Count)
		}
	}

	ic.ring.Append(filtered, false)
	ic.recordEvictions()
	metrics.RecordChunk(string(ic.kind))
	ic.notifier.ChunkAvailable(ic.processID, ic.kind)
}

// emitEOF appends the terminal marker chunk. The marker bypasses the
// filter chain (it carries no payload) but still consumes a sequence.
func (ic *Interceptor) emitEOF() {
	ic.ring.Append(nil, true)
	ic.recordEvictions()
	metrics.RecordChunk(string(ic.kind))
	ic.notifier.ChunkAvailable(ic.processID, ic.kind)
}

func (ic *Interceptor) recordEvictions() {
	if n := ic.ring.Evicted(); n > ic.evicted {
		for i := ic.evicted; i < n; i++ {
			metrics.RecordEviction(string(ic.kind))
		}
		ic.evicted = n
	}
}
