package stream

import (
	"sync"

	"github.com/yte121/openswarm/internal/buffer"
	"github.com/yte121/openswarm/internal/metrics"
)

// Subscriber is one attached observer of a single (process, stream
// kind) pair. Messages arrive on Messages() in strictly increasing
// sequence order; lifecycle and gap messages are interleaved by type.
type Subscriber struct {
	ClientID  string
	ProcessID string
	Kind      buffer.StreamKind

	ring      *buffer.Ring
	policy    Policy
	queueSize int
	out       chan Message
	wake      chan struct{}
	done      chan struct{}

	// cursor is the next sequence expected; owned by the delivery loop.
	cursor int64

	// enqMu serializes the two senders (delivery loop, lifecycle
	// broadcast) and fences channel close against in-flight sends.
	enqMu sync.Mutex

	mu      sync.Mutex
	pending int64 // drops not yet reported to the client
	err     error

	closeOnce sync.Once
}

// Messages returns the delivery channel. It is closed when the
// subscriber is unsubscribed or evicted; check Err() afterwards.
func (s *Subscriber) Messages() <-chan Message {
	return s.out
}

// Err returns why the subscriber ended. Nil for a plain unsubscribe,
// *OverflowError after a policy eviction.
func (s *Subscriber) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// close shuts the subscriber down exactly once. Acquiring enqMu after
// closing done guarantees no sender is mid-flight when out closes.
func (s *Subscriber) close(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)

		s.enqMu.Lock()
		close(s.out)
		s.enqMu.Unlock()
	})
}

// enqueue delivers one message under the subscriber's policy. Returns
// false when the subscriber is finished and should be removed. Never
// blocks: full queues are resolved by dropping or disconnecting.
func (s *Subscriber) enqueue(msg Message) bool {
	s.enqMu.Lock()
	defer s.enqMu.Unlock()

	select {
	case <-s.done:
		return false
	default:
	}

	if s.policy == PolicyDisconnect {
		select {
		case s.out <- msg:
			return true
		default:
			metrics.RecordOverflow(string(PolicyDisconnect))
			return false
		}
	}

	msg.DroppedCount += s.takePending()
	for {
		select {
		case s.out <- msg:
			return true
		default:
		}
		// Queue full. Make room by discarding the oldest queued
		// message, folding its drop report into the pending count.
		select {
		case old := <-s.out:
			s.addPending(1 + old.DroppedCount)
			metrics.RecordOverflow(string(PolicyDropOldest))
		default:
			// Unbuffered queue with no waiting receiver: this
			// message itself is the drop.
			s.addPending(1 + msg.DroppedCount)
			metrics.RecordOverflow(string(PolicyDropOldest))
			return true
		}
	}
}

func (s *Subscriber) takePending() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.pending
	s.pending = 0
	return n
}

func (s *Subscriber) addPending(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending += n
}
