package openaiapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"polaris-hq/polaris/pkg/adaptors"
)

// errStreamDone signals normal end of stream to the chunk pump.
var errStreamDone = errors.New("stream done")

// streamReader reads Server-Sent Events from the backend's streaming API.
type streamReader struct {
	adaptor *Adaptor
	body    io.ReadCloser
	scanner *bufio.Scanner
	closed  bool
}

// newStreamReader opens the backend stream and wraps it in an SSE reader.
func newStreamReader(ctx context.Context, adaptor *Adaptor, url string, req *wireRequest) (*streamReader, error) {
	bodyBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := adaptor.DoRequest(ctx, "POST", url, bodyBytes, adaptor.AuthHeaders())
	if err != nil {
		return nil, err
	}

	return &streamReader{
		adaptor: adaptor,
		body:    resp.Body,
		scanner: bufio.NewScanner(resp.Body),
	}, nil
}

// Read reads the next chunk from the stream.
// Returns nil, errStreamDone when the stream ends normally.
func (s *streamReader) Read(ctx context.Context) (*adaptors.StreamChunk, error) {
	if s.closed {
		return nil, errStreamDone
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, &adaptors.StreamError{
					Endpoint: s.adaptor.Name(),
					Message:  "failed to read stream",
					Cause:    err,
				}
			}
			return nil, errStreamDone
		}

		line := s.scanner.Text()
		if line == "" {
			continue
		}

		// Only data lines carry chunks; comments and event types are skipped.
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")

		if data == "[DONE]" {
			return nil, errStreamDone
		}

		var wireChunk wireStreamResponse
		if err := json.Unmarshal([]byte(data), &wireChunk); err != nil {
			return nil, &adaptors.ParseError{
				Endpoint:    s.adaptor.Name(),
				RawResponse: data,
				Cause:       fmt.Errorf("failed to parse stream chunk: %w", err),
			}
		}

		return transformStreamChunk(&wireChunk), nil
	}
}

// Close closes the stream and releases the connection.
func (s *streamReader) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.body.Close()
}
