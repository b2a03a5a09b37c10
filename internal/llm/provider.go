// Package llm adapts remote language-model APIs to a single streaming
// contract: a Segment is one bounded response body plus the reason the
// model stopped producing it.
package llm

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Message roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContinuePrompt is sent as a user turn after a truncated segment so the
// model resumes where it stopped.
const ContinuePrompt = "Continue your prior response. IMPORTANT: Immediately begin from where you left off without any interruptions. Do not repeat any content, including artifact and action tags."

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FinishReason tells why a segment ended.
type FinishReason string

// Finish reasons. FinishLength means the output token budget was exhausted
// and the response can be continued.
const (
	FinishUnknown FinishReason = ""
	FinishStop    FinishReason = "stop"
	FinishLength  FinishReason = "length"
	FinishFilter  FinishReason = "content_filter"
	FinishOther   FinishReason = "other"
)

var (
	// ErrInvalidAPIKey is returned when the provider rejects the credentials.
	ErrInvalidAPIKey = errors.New("invalid or missing API key")

	// ErrNotConfigured is returned when a provider lacks required settings.
	ErrNotConfigured = errors.New("llm provider not configured")

	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown llm provider")
)

// Options tune a single request.
type Options struct {
	MaxTokens int
}

// Segment is a streamed response body. FinishReason is meaningful once the
// body has been read to EOF.
type Segment interface {
	io.ReadCloser
	FinishReason() FinishReason
}

// Provider produces response segments for a conversation.
type Provider interface {
	Name() string
	Stream(ctx context.Context, msgs []Message, opts Options) (Segment, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, errors.Join(ErrUnknownProvider, errors.New(cfg.Provider))
	}
}

// pipeSegment is a Segment fed by a producer goroutine through an io.Pipe.
type pipeSegment struct {
	*io.PipeReader
	finish chan FinishReason
	reason FinishReason
	cancel context.CancelFunc
}

func newPipeSegment(cancel context.CancelFunc) (*pipeSegment, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return &pipeSegment{PipeReader: pr, finish: make(chan FinishReason, 1), cancel: cancel}, pw
}

func (s *pipeSegment) FinishReason() FinishReason {
	select {
	case r := <-s.finish:
		s.reason = r
	default:
	}
	return s.reason
}

// Close stops the producer and releases the upstream response.
func (s *pipeSegment) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.PipeReader.Close()
}
