package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"polaris-hq/polaris/pkg/adaptors"
)

// StreamState is the lifecycle state of one streaming proxy call.
//
// Transitions: Idle -> Connecting -> Streaming -> Completed | Failed |
// Cancelled. Connecting may also end in Failed (backend refused) or
// Cancelled. Terminal states are absorbing.
type StreamState int32

const (
	StateIdle StreamState = iota
	StateConnecting
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is absorbing.
func (s StreamState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// StatusClientClosedRequest is the recorded status for cancelled
// streams (nginx's non-standard 499).
const StatusClientClosedRequest = 499

// FinalizeFunc records the stream's outcome on the request log: status
// code and the synthesized result payload. The Stream guarantees it is
// invoked exactly once per stream, whichever way the stream ends.
type FinalizeFunc func(statusCode int, result []byte)

// ConnectFunc establishes the backend stream. Called once, in the
// Connecting state.
type ConnectFunc func(ctx context.Context) (<-chan *adaptors.StreamChunk, error)

// Stream drives one streaming response from backend to client.
//
// Chunks are relayed strictly in arrival order. The client's context
// is the backend call's context, so a client disconnect propagates to
// the backend as cancellation. Whatever the outcome, the finalizer
// fires exactly once with the accumulated content and usage, which is
// what keeps metrics at one record per stream.
type Stream struct {
	// ResponseID is the chatcmpl id shared by every relayed chunk.
	ResponseID string

	// Model is the logical model name echoed in chunks.
	Model string

	// OnMidStreamFailure, when set, is called with no arguments if the
	// backend errors after chunks started flowing. Connect failures are
	// the router's failover business; this hook covers the rest.
	OnMidStreamFailure func()

	state    atomic.Int32
	finalize FinalizeFunc
	once     sync.Once
	logger   *slog.Logger

	content strings.Builder
	usage   *adaptors.Usage
	chunks  int
}

// NewStream creates a stream in the Idle state.
func NewStream(responseID, model string, finalize FinalizeFunc) *Stream {
	s := &Stream{
		ResponseID: responseID,
		Model:      model,
		finalize:   finalize,
		logger:     slog.Default().With("component", "proxy.stream", "response_id", responseID),
	}
	s.state.Store(int32(StateIdle))
	return s
}

// State returns the current lifecycle state.
func (s *Stream) State() StreamState {
	return StreamState(s.state.Load())
}

// transition moves from exactly `from` to `to`; returns false if the
// state has moved on (a terminal state never transitions again).
func (s *Stream) transition(from, to StreamState) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// Run executes the stream to a terminal state. Connect errors are
// returned so the caller can fail over or emit a normal HTTP error;
// once relay has begun, errors are reported in-band and Run returns
// nil.
func (s *Stream) Run(ctx context.Context, w http.ResponseWriter, connect ConnectFunc) error {
	if !s.transition(StateIdle, StateConnecting) {
		return fmt.Errorf("stream already started (state %s)", s.State())
	}

	backend, err := connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			s.end(StateCancelled, StatusClientClosedRequest)
			return ctx.Err()
		}
		s.end(StateFailed, http.StatusBadGateway)
		return err
	}

	if !s.transition(StateConnecting, StateStreaming) {
		s.end(StateCancelled, StatusClientClosedRequest)
		return ctx.Err()
	}

	SetSSEHeaders(w)
	flush(w)
	s.relay(ctx, w, backend)
	return nil
}

// relay pumps backend chunks to the client until the stream ends.
func (s *Stream) relay(ctx context.Context, w http.ResponseWriter, backend <-chan *adaptors.StreamChunk) {
	for {
		select {
		case <-ctx.Done():
			// cancellation propagates to the backend through the shared
			// context; drain is the adaptor's job
			s.logger.Warn("client disconnected mid-stream",
				"chunks_relayed", s.chunks,
			)
			s.end(StateCancelled, StatusClientClosedRequest)
			return

		case chunk, ok := <-backend:
			if !ok {
				if err := WriteSSEDone(w); err != nil {
					s.logger.Error("failed to write done marker", "error", err)
				}
				s.end(StateCompleted, http.StatusOK)
				return
			}

			if chunk.Error != nil {
				s.logger.Error("backend stream failed",
					"chunks_relayed", s.chunks,
					"error", chunk.Error,
				)
				if s.OnMidStreamFailure != nil {
					s.OnMidStreamFailure()
				}
				if err := WriteSSEError(w, HandleError(chunk.Error)); err != nil {
					s.logger.Error("failed to write stream error", "error", err)
				}
				s.end(StateFailed, http.StatusBadGateway)
				return
			}

			s.content.WriteString(chunk.Delta)
			if chunk.Usage != nil {
				s.usage = chunk.Usage
			}

			if err := WriteSSEChunk(w, FormatStreamChunk(chunk, s.Model, s.ResponseID)); err != nil {
				// client write failed; treat like a disconnect
				s.logger.Warn("chunk write failed, treating as disconnect",
					"chunks_relayed", s.chunks,
					"error", err,
				)
				s.end(StateCancelled, StatusClientClosedRequest)
				return
			}
			s.chunks++
		}
	}
}

// end moves to a terminal state and fires the finalizer exactly once.
func (s *Stream) end(terminal StreamState, statusCode int) {
	for {
		current := s.State()
		if current.Terminal() {
			return
		}
		if s.transition(current, terminal) {
			break
		}
	}

	s.once.Do(func() {
		if s.finalize == nil {
			return
		}
		s.finalize(statusCode, s.resultPayload())
	})
}

// resultPayload synthesizes the persisted result for the request log:
// the accumulated content plus the backend-reported usage, in the same
// shape a non-streaming response body has, so metrics ingestion parses
// both identically.
func (s *Stream) resultPayload() []byte {
	payload := map[string]interface{}{
		"id":      s.ResponseID,
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   s.Model,
		"choices": []map[string]interface{}{
			{
				"index":   0,
				"message": map[string]string{"role": "assistant", "content": s.content.String()},
			},
		},
		"stream_state": s.State().String(),
	}
	if s.usage != nil {
		payload["usage"] = s.usage
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}
