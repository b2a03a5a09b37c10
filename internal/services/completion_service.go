// Package services – CompletionService
//
// CompletionService turns one conversation into a single streamed response.
// The first provider segment is requested synchronously so that credential
// errors reach the caller before any byte is written. A driver goroutine then
// waits for each segment to drain through a stream.Switch: when the provider
// reports a truncated segment (llm.FinishLength) the driver appends the
// partial answer and llm.ContinuePrompt to the conversation and switches to a
// fresh segment, at most MaxSegments times. Running out of segments fails
// the output with stream.ErrSegmentLimit instead of ending it cleanly.
package services

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-history/internal/llm"
	"github.com/tbourn/go-chat-history/internal/stream"
)

// Defaults for CompletionService.
const (
	DefaultMaxSegments = 2
	DefaultMaxTokens   = 8192
)

// CompletionService streams LLM responses with transparent continuation.
type CompletionService struct {
	Provider llm.Provider

	// MaxSegments bounds the number of continuations after the first
	// segment.
	MaxSegments int
	// MaxTokens is the per-segment output budget sent to the provider.
	MaxTokens int
}

// NewCompletionService constructs a CompletionService with default limits.
func NewCompletionService(p llm.Provider) *CompletionService {
	return &CompletionService{Provider: p, MaxSegments: DefaultMaxSegments, MaxTokens: DefaultMaxTokens}
}

// Stream starts a response for msgs. The returned reader yields the
// concatenation of every segment and ends with EOF, or with the error that
// stopped generation. Closing the reader abandons the response.
func (s *CompletionService) Stream(ctx context.Context, msgs []llm.Message) (io.ReadCloser, error) {
	if len(msgs) == 0 {
		return nil, ErrNoMessages
	}
	if s.Provider == nil {
		return nil, llm.ErrNotConfigured
	}

	tr := otel.Tracer("services/CompletionService")
	ctx, span := tr.Start(ctx, "Stream",
		trace.WithAttributes(
			attribute.String("llm.provider", s.Provider.Name()),
			attribute.Int("messages", len(msgs)),
			attribute.Int("max_segments", s.maxSegments()),
		),
	)

	opts := llm.Options{MaxTokens: s.MaxTokens}
	seg, err := s.Provider.Stream(ctx, msgs, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		completionFailures.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	sw := stream.New(stream.WithMaxSegments(s.maxSegments()))
	go func() {
		defer span.End()
		if err := s.drive(ctx, sw, msgs, seg, opts); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			completionFailures.WithLabelValues(failureReason(err)).Inc()
			zerolog.Ctx(ctx).Warn().Err(err).Int("switches", sw.Switches()).Msg("completion stream failed")
			_ = sw.Fail(err)
			return
		}
		span.SetAttributes(attribute.Int("switches", sw.Switches()))
		_ = sw.Close()
	}()
	return sw.Reader(), nil
}

func (s *CompletionService) maxSegments() int {
	if s.MaxSegments <= 0 {
		return DefaultMaxSegments
	}
	return s.MaxSegments
}

// drive forwards segments into sw until one finishes without truncation.
func (s *CompletionService) drive(ctx context.Context, sw *stream.Switch, msgs []llm.Message, seg llm.Segment, opts llm.Options) error {
	conv := append([]llm.Message(nil), msgs...)
	for {
		var text strings.Builder
		done, err := sw.SwitchSource(io.TeeReader(seg, &text))
		if err != nil {
			_ = seg.Close()
			return err
		}
		completionSegments.Inc()

		err = <-done
		reason := seg.FinishReason()
		_ = seg.Close()
		if err != nil {
			return err
		}
		if reason != llm.FinishLength {
			return nil
		}
		if sw.Switches() >= s.maxSegments() {
			return stream.ErrSegmentLimit
		}

		conv = append(conv,
			llm.Message{Role: llm.RoleAssistant, Content: text.String()},
			llm.Message{Role: llm.RoleUser, Content: llm.ContinuePrompt},
		)
		completionContinuations.Inc()
		if seg, err = s.Provider.Stream(ctx, conv, opts); err != nil {
			return err
		}
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, stream.ErrSegmentLimit):
		return "segment_limit"
	case errors.Is(err, llm.ErrInvalidAPIKey):
		return "invalid_api_key"
	case errors.Is(err, context.Canceled), errors.Is(err, io.ErrClosedPipe):
		return "canceled"
	default:
		return "provider"
	}
}
