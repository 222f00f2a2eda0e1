package buffer

import (
	"errors"
	"sync"
	"testing"
)

func TestRing_Append(t *testing.T) {
	ring := NewRing("proc-1", StreamStdout, 10, 0)

	c := ring.Append([]byte("line0\n"), false)
	if c.Sequence != 0 {
		t.Errorf("First chunk sequence = %v, want 0", c.Sequence)
	}
	if c.ProcessID != "proc-1" || c.Kind != StreamStdout {
		t.Errorf("Chunk identity = (%v, %v), want (proc-1, stdout)", c.ProcessID, c.Kind)
	}

	c = ring.Append([]byte("line1\n"), false)
	if c.Sequence != 1 {
		t.Errorf("Second chunk sequence = %v, want 1", c.Sequence)
	}

	if ring.Len() != 2 {
		t.Errorf("Len() = %v, want 2", ring.Len())
	}
}

func TestRing_From(t *testing.T) {
	ring := NewRing("proc-1", StreamStdout, 10, 0)

	ring.Append([]byte("line0\n"), false)
	ring.Append([]byte("line1\n"), false)
	ring.Append([]byte("line2\n"), false)

	tests := []struct {
		name      string
		seq       int64
		wantCount int
		wantErr   bool
	}{
		{"full replay", 0, 3, false},
		{"from second", 1, 2, false},
		{"from newest", 2, 1, false},
		{"at write head", 3, 0, false},
		{"future sequence", 100, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := ring.From(tt.seq)
			if (err != nil) != tt.wantErr {
				t.Errorf("From() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if len(chunks) != tt.wantCount {
				t.Errorf("From() count = %v, want %v", len(chunks), tt.wantCount)
			}
		})
	}
}

func TestRing_EvictsOldestAtChunkBound(t *testing.T) {
	ring := NewRing("proc-1", StreamStdout, 3, 0)

	ring.Append([]byte("line0\n"), false)
	ring.Append([]byte("line1\n"), false)
	ring.Append([]byte("line2\n"), false)

	c := ring.Append([]byte("line3\n"), false)
	if c.Sequence != 3 {
		t.Errorf("Fourth chunk sequence = %v, want 3", c.Sequence)
	}
	if ring.Len() != 3 {
		t.Errorf("Len() = %v, want 3 (bounded)", ring.Len())
	}
	if ring.Oldest() != 1 {
		t.Errorf("Oldest() = %v, want 1", ring.Oldest())
	}
	if ring.Evicted() != 1 {
		t.Errorf("Evicted() = %v, want 1", ring.Evicted())
	}

	chunks, err := ring.From(1)
	if err != nil {
		t.Fatalf("From(1) error = %v", err)
	}
	want := []string{"line1\n", "line2\n", "line3\n"}
	for i, c := range chunks {
		if string(c.Payload) != want[i] {
			t.Errorf("chunks[%d].Payload = %q, want %q", i, c.Payload, want[i])
		}
	}
}

func TestRing_EvictsOldestAtByteBound(t *testing.T) {
	ring := NewRing("proc-1", StreamStdout, 100, 12)

	ring.Append([]byte("aaaaaa"), false) // 6 bytes
	ring.Append([]byte("bbbbbb"), false) // 12 bytes total
	ring.Append([]byte("cccccc"), false) // would exceed, evicts oldest

	if ring.Oldest() != 1 {
		t.Errorf("Oldest() = %v, want 1", ring.Oldest())
	}
	if ring.Stats().CurrentBytes != 12 {
		t.Errorf("CurrentBytes = %v, want 12", ring.Stats().CurrentBytes)
	}
}

func TestRing_TruncatesPayloadExceedingByteBound(t *testing.T) {
	ring := NewRing("proc-1", StreamStdout, 100, 10)

	ring.Append([]byte("small"), false)
	c := ring.Append([]byte("aaaaaaaaaaaaaaaaaaaa"), false) // 20 bytes

	if len(c.Payload) != 10 {
		t.Errorf("oversize payload length = %d, want clamped to 10", len(c.Payload))
	}
	stats := ring.Stats()
	if stats.CurrentBytes > stats.MaxBytes {
		t.Errorf("CurrentBytes = %d exceeds MaxBytes = %d", stats.CurrentBytes, stats.MaxBytes)
	}
	if ring.Oldest() != 1 {
		t.Errorf("Oldest() = %v, want 1 after eviction", ring.Oldest())
	}
}

func TestRing_GapError(t *testing.T) {
	ring := NewRing("proc-1", StreamStdout, 2, 0)

	for i := 0; i < 4; i++ {
		ring.Append([]byte("x"), false)
	}

	if ring.Oldest() != 2 {
		t.Fatalf("Oldest() = %v, want 2", ring.Oldest())
	}

	_, err := ring.From(0)
	if err == nil {
		t.Fatal("From(0) should fail for evicted sequences")
	}
	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("From(0) error type = %T, want *GapError", err)
	}
	if gap.Missed != 2 {
		t.Errorf("gap.Missed = %v, want 2", gap.Missed)
	}
	if gap.Oldest != 2 {
		t.Errorf("gap.Oldest = %v, want 2", gap.Oldest)
	}
}

func TestRing_Bounds(t *testing.T) {
	ring := NewRing("proc-1", StreamStderr, 10, 0)

	if ring.Newest() != -1 {
		t.Errorf("Newest() on empty = %v, want -1", ring.Newest())
	}
	if ring.Oldest() != 0 {
		t.Errorf("Oldest() on empty = %v, want 0", ring.Oldest())
	}

	ring.Append([]byte("x"), false)
	if ring.Newest() != 0 {
		t.Errorf("Newest() = %v, want 0", ring.Newest())
	}
}

func TestRing_EOFMarker(t *testing.T) {
	ring := NewRing("proc-1", StreamStdout, 10, 0)

	ring.Append([]byte("output\n"), false)
	eof := ring.Append(nil, true)

	if !eof.EOF {
		t.Error("terminal chunk should be marked EOF")
	}
	if eof.Sequence != 1 {
		t.Errorf("EOF sequence = %v, want 1", eof.Sequence)
	}

	chunks, err := ring.From(0)
	if err != nil {
		t.Fatalf("From(0) error = %v", err)
	}
	if len(chunks) != 2 || !chunks[1].EOF {
		t.Errorf("replay should include the EOF marker, got %d chunks", len(chunks))
	}
}

func TestRing_Clear(t *testing.T) {
	ring := NewRing("proc-1", StreamStdout, 10, 0)

	ring.Append([]byte("x"), false)
	ring.Append([]byte("y"), false)
	ring.Clear()

	if ring.Len() != 0 {
		t.Errorf("Len() after Clear() = %v, want 0", ring.Len())
	}

	// Sequence space must survive a clear: a stale cursor sees a gap,
	// never data from the wrong position.
	c := ring.Append([]byte("z"), false)
	if c.Sequence != 2 {
		t.Errorf("sequence after Clear() = %v, want 2", c.Sequence)
	}
	if _, err := ring.From(0); err == nil {
		t.Error("From(0) after Clear() should report a gap")
	}
}

func TestRing_DefaultMaxChunks(t *testing.T) {
	ring := NewRing("proc-1", StreamStdout, 0, 0)
	if ring.Stats().MaxChunks != DefaultMaxChunks {
		t.Errorf("default MaxChunks = %v, want %v", ring.Stats().MaxChunks, DefaultMaxChunks)
	}
}

func TestRing_ConcurrentReaders(t *testing.T) {
	ring := NewRing("proc-1", StreamStdout, 100, 0)
	var wg sync.WaitGroup

	// Single writer, per the ring's contract.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			ring.Append([]byte("data\n"), false)
		}
	}()

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = ring.From(ring.Oldest())
				ring.Newest()
				ring.Len()
				ring.Stats()
			}
		}()
	}

	wg.Wait()

	if ring.Len() != 100 {
		t.Errorf("Len() = %v, want 100", ring.Len())
	}
	if ring.Evicted() != 100 {
		t.Errorf("Evicted() = %v, want 100", ring.Evicted())
	}
}

func TestRing_ReplayDeterminism(t *testing.T) {
	ring := NewRing("proc-1", StreamStdout, 50, 0)
	for i := 0; i < 20; i++ {
		ring.Append([]byte{byte('a' + i)}, false)
	}

	first, err := ring.From(5)
	if err != nil {
		t.Fatalf("From(5) error = %v", err)
	}
	second, err := ring.From(5)
	if err != nil {
		t.Fatalf("From(5) error = %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("replay lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Sequence != second[i].Sequence || string(first[i].Payload) != string(second[i].Payload) {
			t.Errorf("replay diverged at %d", i)
		}
	}
}
