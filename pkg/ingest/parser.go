package ingest

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktokenloader "github.com/pkoukk/tiktoken-go-loader"

	"polaris-hq/polaris/pkg/store"
)

// resultPayload is the subset of a persisted backend result that
// ingestion cares about. Both chat and plain completion shapes fit.
type resultPayload struct {
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Choices []struct {
		Text    string `json:"text"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const encodingName = "cl100k_base"

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

// countTokens tokenizes text with the offline cl100k_base encoding.
// Used only when the backend omitted usage numbers.
func countTokens(text string) (int, error) {
	encodingOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktokenloader.NewOfflineLoader())
		encoding, encodingErr = tiktoken.GetEncoding(encodingName)
	})
	if encodingErr != nil {
		return 0, encodingErr
	}
	return len(encoding.Encode(text, nil, nil)), nil
}

// deriveMetrics computes the metrics row for one request log.
//
// The backend's reported usage wins. When it is absent (some engines
// omit usage on streamed responses), completion tokens are recomputed
// by tokenizing the generated text. The derivation is pure: the same
// row always yields the same metrics, which is what makes reprocessing
// safe.
func deriveMetrics(log *store.RequestLog) (*store.RequestMetrics, error) {
	var payload resultPayload
	if err := json.Unmarshal(log.Result, &payload); err != nil {
		return nil, err
	}

	m := &store.RequestMetrics{
		RequestID:        log.ID,
		PromptTokens:     payload.Usage.PromptTokens,
		CompletionTokens: payload.Usage.CompletionTokens,
		TotalTokens:      payload.Usage.TotalTokens,
	}

	if m.CompletionTokens == 0 {
		if text := generatedText(&payload); text != "" {
			n, err := countTokens(text)
			if err != nil {
				return nil, err
			}
			m.CompletionTokens = n
		}
	}
	if m.TotalTokens == 0 {
		m.TotalTokens = m.PromptTokens + m.CompletionTokens
	}

	if !log.BackendRequestAt.IsZero() && !log.BackendResponseAt.IsZero() {
		elapsed := log.BackendResponseAt.Sub(log.BackendRequestAt)
		m.ResponseTimeMs = elapsed.Milliseconds()
		if secs := elapsed.Seconds(); secs > 0 {
			m.TokensPerSecond = float64(m.CompletionTokens) / secs
		}
	}

	return m, nil
}

// generatedText concatenates the generated content across choices.
func generatedText(payload *resultPayload) string {
	var b strings.Builder
	for _, c := range payload.Choices {
		if c.Message.Content != "" {
			b.WriteString(c.Message.Content)
		} else {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}
