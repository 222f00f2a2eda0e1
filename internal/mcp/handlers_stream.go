package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/yte121/openswarm/internal/buffer"
)

// StreamParams is the unified params struct for the stream tool
type StreamParams struct {
	Action string `json:"action"` // Required: read, stats

	ProcessID string `json:"process_id,omitempty"`
	Stream    string `json:"stream,omitempty"` // "stdout" (default) or "stderr"

	// For read
	SinceSequence int64 `json:"since_sequence,omitempty"`
	MaxChunks     int   `json:"max_chunks,omitempty"`
}

var streamActions = []string{"read", "stats"}

// StreamReadResult is the structured payload returned by the read action
type StreamReadResult struct {
	ProcessID    string            `json:"process_id"`
	Stream       buffer.StreamKind `json:"stream"`
	Chunks       []*buffer.Chunk   `json:"chunks"`
	NextSequence int64             `json:"next_sequence"`
	EOF          bool              `json:"eof"`

	// Gap is set when since_sequence points at evicted chunks. Resume
	// reading from Gap.Oldest.
	Gap *StreamGap `json:"gap,omitempty"`
}

// StreamGap describes a range of chunks lost to buffer eviction
type StreamGap struct {
	Requested int64 `json:"requested_sequence"`
	Oldest    int64 `json:"oldest_sequence"`
	Missed    int64 `json:"missed_chunks"`
}

// handleStream is the unified handler for the stream tool
func (s *Server) handleStream(ctx context.Context, request *mcp.CallToolRequest, params *StreamParams) (*mcp.CallToolResult, any, error) {
	if params.Action == "" {
		return nil, nil, missingActionError("stream", streamActions)
	}

	switch params.Action {
	case "read":
		return s.streamRead(ctx, params)
	case "stats":
		return s.streamStats(ctx, params)
	default:
		return nil, nil, actionError("stream", params.Action, streamActions)
	}
}

func (s *Server) streamRing(params *StreamParams) (*buffer.Ring, error) {
	if params.ProcessID == "" {
		return nil, fmt.Errorf("process_id is required")
	}

	kind := buffer.StreamKind(params.Stream)
	if kind == "" {
		kind = buffer.StreamStdout
	}
	if !buffer.IsValidStreamKind(kind) {
		return nil, fmt.Errorf("invalid stream '%s'; valid streams: stdout, stderr", params.Stream)
	}

	p, err := s.gateway.Get(params.ProcessID)
	if err != nil {
		return nil, SanitizeError(err, "stream read")
	}
	return p.Ring(kind)
}

func (s *Server) streamRead(ctx context.Context, params *StreamParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireAuth(ctx); err != nil {
		return nil, nil, err
	}

	ring, err := s.streamRing(params)
	if err != nil {
		return nil, nil, err
	}

	res := &StreamReadResult{
		ProcessID: ring.ProcessID(),
		Stream:    ring.Kind(),
	}

	chunks, err := ring.From(params.SinceSequence)
	if err != nil {
		var gap *buffer.GapError
		if !errors.As(err, &gap) {
			return nil, nil, err
		}
		// Report the gap and hand back everything still retained.
		res.Gap = &StreamGap{Requested: gap.Requested, Oldest: gap.Oldest, Missed: gap.Missed}
		chunks, err = ring.From(gap.Oldest)
		if err != nil {
			return nil, nil, err
		}
	}

	if params.MaxChunks > 0 && len(chunks) > params.MaxChunks {
		chunks = chunks[:params.MaxChunks]
	}
	res.Chunks = chunks

	res.NextSequence = params.SinceSequence
	if n := len(chunks); n > 0 {
		res.NextSequence = chunks[n-1].Sequence + 1
		res.EOF = chunks[n-1].EOF
	}

	var sb strings.Builder
	if res.Gap != nil {
		sb.WriteString(fmt.Sprintf("⚠️  %d chunk(s) before sequence %d were evicted; resumed at %d.\n\n",
			res.Gap.Missed, res.Gap.Requested, res.Gap.Oldest))
	}
	for _, c := range chunks {
		sb.Write(c.Payload)
	}
	if res.EOF {
		sb.WriteString(fmt.Sprintf("\n[%s closed]", res.Stream))
	}
	if sb.Len() == 0 {
		sb.WriteString("(no new output)")
	}

	return NewTextResult(sb.String()), res, nil
}

func (s *Server) streamStats(ctx context.Context, params *StreamParams) (*mcp.CallToolResult, any, error) {
	if _, err := requireAuth(ctx); err != nil {
		return nil, nil, err
	}

	ring, err := s.streamRing(params)
	if err != nil {
		return nil, nil, err
	}

	stats := ring.Stats()
	result := fmt.Sprintf("Stream %s/%s:\n", stats.ProcessID, stats.Kind)
	result += fmt.Sprintf("  Chunks:   %d (max %d)\n", stats.CurrentChunks, stats.MaxChunks)
	result += fmt.Sprintf("  Bytes:    %d\n", stats.CurrentBytes)
	result += fmt.Sprintf("  Sequence: %d..%d\n", stats.Oldest, stats.Newest)
	result += fmt.Sprintf("  Evicted:  %d\n", stats.Evicted)
	result += fmt.Sprintf("  Subscribers: %d\n", s.gateway.SubscriberCount(stats.ProcessID))

	return NewTextResult(result), stats, nil
}
