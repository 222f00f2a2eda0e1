package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yte121/openswarm/internal/buffer"
	"github.com/yte121/openswarm/internal/logger"
	"github.com/yte121/openswarm/internal/metrics"
	"github.com/yte121/openswarm/internal/process"
)

/*
STREAM FAN-OUT

The multiplexer turns one writer per (process, stream kind) into any
number of independent readers:

    interceptor ──append──> ring <──From(cursor)── delivery loop ──> subscriber 1
                   │                └── delivery loop ──> subscriber 2
                   └─ ChunkAvailable wakes every delivery loop

Each subscriber owns a dedicated delivery goroutine that drains the
shared ring from its private cursor. The producer's only interaction
with subscribers is a non-blocking wake, so a stalled subscriber can
never slow capture or any other subscriber.

Late joiners replay backlog from the ring. A cursor that points at
evicted history yields a gap message before any data; the cursor then
snaps to the oldest retained sequence. Within one subscriber, data
sequences are strictly increasing with no duplicates, and two
subscribers starting from the same sequence observe identical chunks.

Lifecycle events arrive on a separate channel from the supervisor and
are broadcast to every subscriber of the affected process, interleaved
with data by message type.
*/

// DefaultQueueSize bounds a subscriber's send queue when the caller
// does not choose one.
const DefaultQueueSize = 100

// ErrSubscriberNotFound is returned when a client id has no active
// subscription.
var ErrSubscriberNotFound = errors.New("subscriber not found")

type streamKey struct {
	processID string
	kind      buffer.StreamKind
}

// SubscribeOptions tunes one subscription.
type SubscribeOptions struct {
	// From is the first sequence wanted. Nil replays the full retained
	// backlog.
	From *int64

	// Policy defaults to PolicyDropOldest.
	Policy Policy

	// QueueSize bounds the send queue: 0 selects DefaultQueueSize, a
	// negative value selects an unbuffered queue.
	QueueSize int
}

// Multiplexer fans captured output out to subscribers. It implements
// intercept.Notifier; the interceptors wake it on every new chunk.
type Multiplexer struct {
	mu       sync.RWMutex
	byClient map[string]*Subscriber
	byStream map[streamKey]map[string]*Subscriber
	byProc   map[string]map[string]*Subscriber
}

// NewMultiplexer creates an empty multiplexer.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{
		byClient: make(map[string]*Subscriber),
		byStream: make(map[streamKey]map[string]*Subscriber),
		byProc:   make(map[string]map[string]*Subscriber),
	}
}

// Run broadcasts lifecycle events until the context ends. Call it in
// its own goroutine with the supervisor's event channel.
func (m *Multiplexer) Run(ctx context.Context, events <-chan process.LifecycleEvent) {
	for {
		select {
		case ev := <-events:
			m.broadcast(lifecycleMessage(ev))
		case <-ctx.Done():
			return
		}
	}
}

// ChunkAvailable wakes the delivery loops for one stream. Never blocks.
func (m *Multiplexer) ChunkAvailable(processID string, kind buffer.StreamKind) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.byStream[streamKey{processID, kind}] {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Subscribe attaches a new observer to one (process, stream kind) ring
// and starts its delivery loop. The returned subscriber's channel first
// carries the retained backlog from the requested sequence, then live
// chunks.
func (m *Multiplexer) Subscribe(ring *buffer.Ring, opts SubscribeOptions) (*Subscriber, error) {
	policy, err := ParsePolicy(string(opts.Policy))
	if err != nil {
		return nil, err
	}

	queueSize := opts.QueueSize
	switch {
	case queueSize == 0:
		queueSize = DefaultQueueSize
	case queueSize < 0:
		queueSize = 0
	}

	cursor := ring.Oldest()
	if opts.From != nil {
		if *opts.From < 0 {
			return nil, fmt.Errorf("from sequence must not be negative, got %d", *opts.From)
		}
		cursor = *opts.From
	}

	s := &Subscriber{
		ClientID:  uuid.NewString(),
		ProcessID: ring.ProcessID(),
		Kind:      ring.Kind(),
		ring:      ring,
		policy:    policy,
		queueSize: queueSize,
		out:       make(chan Message, queueSize),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		cursor:    cursor,
	}

	key := streamKey{s.ProcessID, s.Kind}
	m.mu.Lock()
	m.byClient[s.ClientID] = s
	if m.byStream[key] == nil {
		m.byStream[key] = make(map[string]*Subscriber)
	}
	m.byStream[key][s.ClientID] = s
	if m.byProc[s.ProcessID] == nil {
		m.byProc[s.ProcessID] = make(map[string]*Subscriber)
	}
	m.byProc[s.ProcessID][s.ClientID] = s
	m.mu.Unlock()

	metrics.Subscribers.Inc()
	go m.deliver(s)
	return s, nil
}

// Unsubscribe detaches a client and releases its queue. Other
// subscribers and the producer are unaffected.
func (m *Multiplexer) Unsubscribe(clientID string) error {
	m.mu.RLock()
	s, ok := m.byClient[clientID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSubscriberNotFound, clientID)
	}
	s.close(nil)
	m.remove(s)
	return nil
}

// SubscriberCount reports active subscribers across both streams of a
// process. The cleanup reaper uses it to find abandoned processes.
func (m *Multiplexer) SubscriberCount(processID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byProc[processID])
}

// deliver is the per-subscriber loop: replay backlog from the cursor,
// then alternate between draining new chunks and waiting for a wake.
func (m *Multiplexer) deliver(s *Subscriber) {
	for {
		chunks, err := s.ring.From(s.cursor)
		if err != nil {
			var gap *buffer.GapError
			if !errors.As(err, &gap) {
				logger.Error("delivery for subscriber %s failed: %v", s.ClientID, err)
				s.close(err)
				m.remove(s)
				return
			}
			// History the cursor wanted is gone. Say so before
			// serving anything, then resume from the oldest
			// retained chunk.
			s.cursor = gap.Oldest
			if !s.enqueue(gapMessage(s.ProcessID, s.Kind, gap.Oldest, gap.Missed)) {
				m.evict(s)
				return
			}
			continue
		}

		for _, c := range chunks {
			if !s.enqueue(chunkMessage(c)) {
				m.evict(s)
				return
			}
			s.cursor = c.Sequence + 1
		}

		select {
		case <-s.wake:
		case <-s.done:
			m.remove(s)
			return
		}
	}
}

// evict finalizes a subscriber whose enqueue reported failure: either
// it was already closed, or its queue overflowed under PolicyDisconnect.
func (m *Multiplexer) evict(s *Subscriber) {
	s.close(&OverflowError{ClientID: s.ClientID, QueueSize: s.queueSize})
	m.remove(s)
}

// broadcast fans a lifecycle message to every subscriber of a process.
func (m *Multiplexer) broadcast(msg Message) {
	m.mu.RLock()
	subs := make([]*Subscriber, 0, len(m.byProc[msg.ProcessID]))
	for _, s := range m.byProc[msg.ProcessID] {
		subs = append(subs, s)
	}
	m.mu.RUnlock()

	for _, s := range subs {
		msg := msg
		msg.StreamKind = s.Kind
		if !s.enqueue(msg) {
			m.evict(s)
		}
	}
}

func (m *Multiplexer) remove(s *Subscriber) {
	m.mu.Lock()
	if _, ok := m.byClient[s.ClientID]; ok {
		delete(m.byClient, s.ClientID)
		delete(m.byStream[streamKey{s.ProcessID, s.Kind}], s.ClientID)
		delete(m.byProc[s.ProcessID], s.ClientID)
		metrics.Subscribers.Dec()
	}
	m.mu.Unlock()
}
