package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/tbourn/go-chat-history/internal/llm"
	"github.com/tbourn/go-chat-history/internal/stream"
)

// ----- Fake provider -----

type fakeSegment struct {
	io.Reader
	reason llm.FinishReason
	closed bool
}

func (s *fakeSegment) FinishReason() llm.FinishReason { return s.reason }
func (s *fakeSegment) Close() error                   { s.closed = true; return nil }

type fakeReply struct {
	text   string
	reason llm.FinishReason
	err    error
}

type fakeProvider struct {
	mu      sync.Mutex
	replies []fakeReply
	calls   [][]llm.Message
	opts    []llm.Options
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Stream(_ context.Context, msgs []llm.Message, opts llm.Options) (llm.Segment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]llm.Message(nil), msgs...))
	p.opts = append(p.opts, opts)
	if len(p.replies) == 0 {
		return nil, errors.New("fake: no more replies")
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return &fakeSegment{Reader: strings.NewReader(r.text), reason: r.reason}, nil
}

func (p *fakeProvider) Calls() [][]llm.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

var userHi = []llm.Message{{Role: llm.RoleUser, Content: "hi"}}

// ----- Tests -----

func TestCompletion_SingleSegment(t *testing.T) {
	p := &fakeProvider{replies: []fakeReply{{text: "hello", reason: llm.FinishStop}}}
	s := NewCompletionService(p)

	rc, err := s.Stream(context.Background(), userHi)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("body = %q", b)
	}
	if n := len(p.Calls()); n != 1 {
		t.Fatalf("provider calls = %d", n)
	}
	if p.opts[0].MaxTokens != DefaultMaxTokens {
		t.Fatalf("MaxTokens = %d", p.opts[0].MaxTokens)
	}
}

func TestCompletion_ContinuesAfterTruncation(t *testing.T) {
	p := &fakeProvider{replies: []fakeReply{
		{text: "Once upon ", reason: llm.FinishLength},
		{text: "a time.", reason: llm.FinishStop},
	}}
	s := NewCompletionService(p)

	rc, err := s.Stream(context.Background(), userHi)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "Once upon a time." {
		t.Fatalf("body = %q", b)
	}

	calls := p.Calls()
	if len(calls) != 2 {
		t.Fatalf("provider calls = %d", len(calls))
	}
	second := calls[1]
	if len(second) != 3 {
		t.Fatalf("continuation conversation = %+v", second)
	}
	if second[1].Role != llm.RoleAssistant || second[1].Content != "Once upon " {
		t.Fatalf("assistant turn = %+v", second[1])
	}
	if second[2].Role != llm.RoleUser || second[2].Content != llm.ContinuePrompt {
		t.Fatalf("continue turn = %+v", second[2])
	}
}

func TestCompletion_SegmentLimitFailsOutput(t *testing.T) {
	p := &fakeProvider{replies: []fakeReply{
		{text: "a", reason: llm.FinishLength},
		{text: "b", reason: llm.FinishLength},
		{text: "c", reason: llm.FinishLength},
		{text: "never", reason: llm.FinishStop},
	}}
	s := NewCompletionService(p)
	s.MaxSegments = 2

	rc, err := s.Stream(context.Background(), userHi)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	b, err := io.ReadAll(rc)
	if !errors.Is(err, stream.ErrSegmentLimit) {
		t.Fatalf("expected ErrSegmentLimit, got %v", err)
	}
	if string(b) != "abc" {
		t.Fatalf("body = %q", b)
	}
	if n := len(p.Calls()); n != 3 {
		t.Fatalf("provider calls = %d; want 3", n)
	}
}

func TestCompletion_FirstSegmentErrorIsSynchronous(t *testing.T) {
	p := &fakeProvider{replies: []fakeReply{{err: llm.ErrInvalidAPIKey}}}
	_, err := NewCompletionService(p).Stream(context.Background(), userHi)
	if !errors.Is(err, llm.ErrInvalidAPIKey) {
		t.Fatalf("expected ErrInvalidAPIKey, got %v", err)
	}
}

func TestCompletion_ContinuationErrorFailsOutput(t *testing.T) {
	boom := errors.New("provider down")
	p := &fakeProvider{replies: []fakeReply{
		{text: "partial", reason: llm.FinishLength},
		{err: boom},
	}}
	rc, err := NewCompletionService(p).Stream(context.Background(), userHi)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	b, err := io.ReadAll(rc)
	if !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
	if string(b) != "partial" {
		t.Fatalf("body = %q", b)
	}
}

func TestCompletion_Validation(t *testing.T) {
	if _, err := NewCompletionService(&fakeProvider{}).Stream(context.Background(), nil); !errors.Is(err, ErrNoMessages) {
		t.Fatalf("no messages: %v", err)
	}
	if _, err := (&CompletionService{}).Stream(context.Background(), userHi); !errors.Is(err, llm.ErrNotConfigured) {
		t.Fatalf("no provider: %v", err)
	}
}
