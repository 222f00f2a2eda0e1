package intercept

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yte121/openswarm/internal/buffer"
	"github.com/yte121/openswarm/internal/filter"
)

// recordingNotifier counts notifications per stream kind.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []buffer.StreamKind
}

func (n *recordingNotifier) ChunkAvailable(processID string, kind buffer.StreamKind) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, kind)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func runToEnd(t *testing.T, ic *Interceptor, input io.Reader) {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- ic.Run(t.Context(), input)
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not finish")
	}
}

func collect(t *testing.T, ring *buffer.Ring) []*buffer.Chunk {
	t.Helper()
	chunks, err := ring.From(ring.Oldest())
	if err != nil {
		t.Fatalf("From failed: %v", err)
	}
	return chunks
}

func TestRunBuffersCompleteLines(t *testing.T) {
	ring := buffer.NewRing("proc-1", buffer.StreamStdout, 10, 0)
	notifier := &recordingNotifier{}
	ic := New(ring, nil, notifier, Options{})

	runToEnd(t, ic, strings.NewReader("hello\nworld\n"))

	chunks := collect(t, ring)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks (data + eof), got %d", len(chunks))
	}
	if got := string(chunks[0].Payload); got != "hello\nworld\n" {
		t.Errorf("payload = %q, want %q", got, "hello\nworld\n")
	}
	if !chunks[1].EOF {
		t.Error("final chunk should be the terminal marker")
	}
	if len(chunks[1].Payload) != 0 {
		t.Error("terminal marker should carry no payload")
	}
	if notifier.count() != 2 {
		t.Errorf("notifier called %d times, want 2", notifier.count())
	}
}

func TestRunFlushesPartialLineOnEnd(t *testing.T) {
	ring := buffer.NewRing("proc-1", buffer.StreamStderr, 10, 0)
	ic := New(ring, nil, &recordingNotifier{}, Options{})

	runToEnd(t, ic, strings.NewReader("no trailing newline"))

	chunks := collect(t, ring)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if got := string(chunks[0].Payload); got != "no trailing newline" {
		t.Errorf("payload = %q", got)
	}
}

func TestRunEmitsEOFOnEmptyStream(t *testing.T) {
	ring := buffer.NewRing("proc-1", buffer.StreamStdout, 10, 0)
	ic := New(ring, nil, &recordingNotifier{}, Options{})

	runToEnd(t, ic, strings.NewReader(""))

	chunks := collect(t, ring)
	if len(chunks) != 1 {
		t.Fatalf("expected only the terminal marker, got %d chunks", len(chunks))
	}
	if !chunks[0].EOF || chunks[0].Sequence != 0 {
		t.Errorf("terminal marker = %+v", chunks[0])
	}
}

func TestRunFlushesOnTimeout(t *testing.T) {
	ring := buffer.NewRing("proc-1", buffer.StreamStdout, 10, 0)
	ic := New(ring, nil, &recordingNotifier{}, Options{FlushInterval: 20 * time.Millisecond})

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- ic.Run(t.Context(), pr)
	}()

	if _, err := pw.Write([]byte("partial")); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The partial line has no newline, so only the timeout can flush it.
	deadline := time.Now().Add(2 * time.Second)
	for ring.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("partial line never flushed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	chunks := collect(t, ring)
	if got := string(chunks[0].Payload); got != "partial" {
		t.Errorf("payload = %q, want %q", got, "partial")
	}

	pw.Close()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestRunCapsReassemblyWindow(t *testing.T) {
	ring := buffer.NewRing("proc-1", buffer.StreamStdout, 10, 0)
	ic := New(ring, nil, &recordingNotifier{}, Options{
		FlushInterval: time.Hour,
		MaxUnit:       8,
	})

	runToEnd(t, ic, strings.NewReader("0123456789abcdef"))

	chunks := collect(t, ring)
	var payload bytes.Buffer
	for _, c := range chunks {
		payload.Write(c.Payload)
	}
	if payload.String() != "0123456789abcdef" {
		t.Errorf("reassembled payload = %q", payload.String())
	}
	// 16 bytes with an 8 byte cap means at least two data chunks.
	if len(chunks) < 3 {
		t.Errorf("expected window cap to split output, got %d chunks", len(chunks))
	}
}

func TestRunRedactsBeforeBuffering(t *testing.T) {
	chain, err := filter.NewChain([]filter.Rule{
		{Pattern: `password=\S+`, Replacement: "password=" + filter.DefaultReplacement, Sensitive: true},
	})
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	ring := buffer.NewRing("proc-1", buffer.StreamStdout, 10, 0)
	ic := New(ring, chain, &recordingNotifier{}, Options{})

	runToEnd(t, ic, strings.NewReader("login ok password=secret123 done\n"))

	chunks := collect(t, ring)
	for _, c := range chunks {
		if bytes.Contains(c.Payload, []byte("secret123")) {
			t.Fatalf("unredacted secret reached the ring: %q", c.Payload)
		}
	}
	if got := string(chunks[0].Payload); got != "login ok password=***FILTERED*** done\n" {
		t.Errorf("payload = %q", got)
	}
}

func TestRunRedactsAcrossFragmentBoundary(t *testing.T) {
	chain, err := filter.NewChain([]filter.Rule{
		{Pattern: `password=\S+`, Replacement: filter.DefaultReplacement, Sensitive: true},
	})
	if err != nil {
		t.Fatalf("NewChain failed: %v", err)
	}

	ring := buffer.NewRing("proc-1", buffer.StreamStdout, 10, 0)
	ic := New(ring, chain, &recordingNotifier{}, Options{FlushInterval: time.Hour})

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- ic.Run(t.Context(), pr)
	}()

	// The secret arrives split across two writes. Reassembly must hold
	// the first half until the newline lands.
	if _, err := pw.Write([]byte("password=sec")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := pw.Write([]byte("ret123\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	pw.Close()
	if err := <-done; err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	chunks := collect(t, ring)
	for _, c := range chunks {
		if bytes.Contains(c.Payload, []byte("secret123")) {
			t.Fatalf("split secret leaked into the ring: %q", c.Payload)
		}
	}
	if got := string(chunks[0].Payload); got != "***FILTERED***\n" {
		t.Errorf("payload = %q", got)
	}
}

func TestRunSequencesAreContiguous(t *testing.T) {
	ring := buffer.NewRing("proc-1", buffer.StreamStdout, 100, 0)
	ic := New(ring, nil, &recordingNotifier{}, Options{})

	var input strings.Builder
	for i := 0; i < 50; i++ {
		input.WriteString("line\n")
	}
	runToEnd(t, ic, strings.NewReader(input.String()))

	chunks := collect(t, ring)
	for i, c := range chunks {
		if c.Sequence != int64(i) {
			t.Fatalf("chunk %d has sequence %d", i, c.Sequence)
		}
	}
	if !chunks[len(chunks)-1].EOF {
		t.Error("last chunk should be the terminal marker")
	}
}
