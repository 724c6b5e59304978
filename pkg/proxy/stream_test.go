package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"polaris-hq/polaris/pkg/adaptors"
)

// recordedFinalize captures finalizer invocations for assertions.
type recordedFinalize struct {
	mu     sync.Mutex
	calls  int
	status int
	result []byte
}

func (f *recordedFinalize) fn(statusCode int, result []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.status = statusCode
	f.result = result
}

func (f *recordedFinalize) snapshot() (int, int, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.status, f.result
}

func chunkChannel(chunks ...*adaptors.StreamChunk) <-chan *adaptors.StreamChunk {
	ch := make(chan *adaptors.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func connectWith(chunks ...*adaptors.StreamChunk) ConnectFunc {
	return func(ctx context.Context) (<-chan *adaptors.StreamChunk, error) {
		return chunkChannel(chunks...), nil
	}
}

func TestStreamCompletes(t *testing.T) {
	fin := &recordedFinalize{}
	s := NewStream("chatcmpl-test-1", "llama", fin.fn)
	w := httptest.NewRecorder()

	err := s.Run(context.Background(), w, connectWith(
		&adaptors.StreamChunk{Delta: "Hello"},
		&adaptors.StreamChunk{Delta: ", "},
		&adaptors.StreamChunk{Delta: "world", FinishReason: "stop",
			Usage: &adaptors.Usage{PromptTokens: 5, CompletionTokens: 3, TotalTokens: 8}},
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.State() != StateCompleted {
		t.Errorf("state = %s, want completed", s.State())
	}

	body := w.Body.String()
	if !strings.Contains(body, "data: [DONE]") {
		t.Error("missing [DONE] marker")
	}
	if got := strings.Count(body, "data: "); got != 4 {
		t.Errorf("SSE events = %d, want 3 chunks + done", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	calls, status, result := fin.snapshot()
	if calls != 1 {
		t.Fatalf("finalize calls = %d, want 1", calls)
	}
	if status != 200 {
		t.Errorf("finalize status = %d, want 200", status)
	}

	var payload struct {
		Object  string `json:"object"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage *adaptors.Usage `json:"usage"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		t.Fatalf("result payload: %v", err)
	}
	if payload.Object != "chat.completion" {
		t.Errorf("object = %q", payload.Object)
	}
	if got := payload.Choices[0].Message.Content; got != "Hello, world" {
		t.Errorf("accumulated content = %q", got)
	}
	if payload.Usage == nil || payload.Usage.TotalTokens != 8 {
		t.Errorf("usage = %+v", payload.Usage)
	}
}

func TestStreamConnectFailure(t *testing.T) {
	fin := &recordedFinalize{}
	s := NewStream("chatcmpl-test-2", "llama", fin.fn)
	w := httptest.NewRecorder()

	connectErr := fmt.Errorf("connection refused")
	err := s.Run(context.Background(), w, func(ctx context.Context) (<-chan *adaptors.StreamChunk, error) {
		return nil, connectErr
	})
	if err != connectErr {
		t.Fatalf("err = %v, want the connect error back", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
	// Headers were never sent, so the caller can still write a normal
	// HTTP error response.
	if strings.Contains(w.Body.String(), "data:") {
		t.Error("SSE data written before a successful connect")
	}

	calls, status, _ := fin.snapshot()
	if calls != 1 || status != 502 {
		t.Errorf("finalize = (%d calls, %d), want (1, 502)", calls, status)
	}
}

func TestStreamMidStreamFailure(t *testing.T) {
	fin := &recordedFinalize{}
	s := NewStream("chatcmpl-test-3", "llama", fin.fn)

	hookFired := false
	s.OnMidStreamFailure = func() { hookFired = true }

	w := httptest.NewRecorder()
	err := s.Run(context.Background(), w, connectWith(
		&adaptors.StreamChunk{Delta: "partial"},
		&adaptors.StreamChunk{Error: fmt.Errorf("backend died")},
	))
	if err != nil {
		t.Fatalf("Run: %v (mid-stream errors are in-band)", err)
	}
	if s.State() != StateFailed {
		t.Errorf("state = %s, want failed", s.State())
	}
	if !hookFired {
		t.Error("mid-stream failure hook not fired")
	}

	body := w.Body.String()
	if !strings.Contains(body, "partial") {
		t.Error("chunk before the failure was not relayed")
	}
	if strings.Contains(body, "data: [DONE]") {
		t.Error("[DONE] written after a failure")
	}
	if !strings.Contains(body, "error") {
		t.Error("no error event written")
	}

	calls, status, result := fin.snapshot()
	if calls != 1 || status != 502 {
		t.Errorf("finalize = (%d calls, %d), want (1, 502)", calls, status)
	}
	if !strings.Contains(string(result), "partial") {
		t.Error("partial content missing from finalized result")
	}
}

func TestStreamCancellation(t *testing.T) {
	fin := &recordedFinalize{}
	s := NewStream("chatcmpl-test-4", "llama", fin.fn)
	w := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())

	backend := make(chan *adaptors.StreamChunk)
	connect := func(ctx context.Context) (<-chan *adaptors.StreamChunk, error) {
		return backend, nil
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, w, connect) }()

	backend <- &adaptors.StreamChunk{Delta: "first"}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end on cancellation")
	}

	if s.State() != StateCancelled {
		t.Errorf("state = %s, want cancelled", s.State())
	}
	calls, status, _ := fin.snapshot()
	if calls != 1 || status != StatusClientClosedRequest {
		t.Errorf("finalize = (%d calls, %d), want (1, %d)", calls, status, StatusClientClosedRequest)
	}
}

func TestStreamCancelledBeforeConnectReturns(t *testing.T) {
	fin := &recordedFinalize{}
	s := NewStream("chatcmpl-test-5", "llama", fin.fn)
	w := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	err := s.Run(ctx, w, func(ctx context.Context) (<-chan *adaptors.StreamChunk, error) {
		cancel()
		return nil, ctx.Err()
	})
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if s.State() != StateCancelled {
		t.Errorf("state = %s, want cancelled", s.State())
	}
	calls, status, _ := fin.snapshot()
	if calls != 1 || status != StatusClientClosedRequest {
		t.Errorf("finalize = (%d calls, %d)", calls, status)
	}
}

func TestStreamRunTwice(t *testing.T) {
	fin := &recordedFinalize{}
	s := NewStream("chatcmpl-test-6", "llama", fin.fn)
	w := httptest.NewRecorder()

	if err := s.Run(context.Background(), w, connectWith()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := s.Run(context.Background(), httptest.NewRecorder(), connectWith()); err == nil {
		t.Fatal("second Run must fail")
	}
	if calls, _, _ := fin.snapshot(); calls != 1 {
		t.Errorf("finalize calls = %d, want exactly 1", calls)
	}
}

func TestStreamChunkOrderPreserved(t *testing.T) {
	fin := &recordedFinalize{}
	s := NewStream("chatcmpl-test-7", "llama", fin.fn)
	w := httptest.NewRecorder()

	deltas := []string{"a", "b", "c", "d", "e"}
	chunks := make([]*adaptors.StreamChunk, len(deltas))
	for i, d := range deltas {
		chunks[i] = &adaptors.StreamChunk{Delta: d}
	}
	if err := s.Run(context.Background(), w, connectWith(chunks...)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Every relayed event carries the shared response id, and deltas
	// appear in arrival order.
	var got []string
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: {") {
			continue
		}
		var chunk struct {
			ID      string `json:"id"`
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &chunk); err != nil {
			t.Fatalf("chunk decode: %v", err)
		}
		if chunk.ID != "chatcmpl-test-7" {
			t.Errorf("chunk id = %q", chunk.ID)
		}
		got = append(got, chunk.Choices[0].Delta.Content)
	}
	if strings.Join(got, "") != "abcde" {
		t.Errorf("deltas = %v, want arrival order preserved", got)
	}
}
