package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini streams responses from the Google Gemini API.
type Gemini struct {
	apiKey string
	model  string
}

// NewGemini returns a Gemini provider. The client is created per request, so
// construction never dials.
func NewGemini(_ context.Context, apiKey, model string) (*Gemini, error) {
	if strings.TrimSpace(model) == "" {
		model = "gemini-2.5-flash"
	}
	return &Gemini{apiKey: apiKey, model: model}, nil
}

func (p *Gemini) Name() string { return "gemini" }

// Stream starts a chat with every message but the last as history and sends
// the last one. The first response chunk is fetched before returning so
// credential errors surface synchronously.
func (p *Gemini) Stream(ctx context.Context, msgs []Message, opts Options) (Segment, error) {
	if strings.TrimSpace(p.apiKey) == "" {
		return nil, ErrInvalidAPIKey
	}
	if len(msgs) == 0 {
		return nil, errors.New("gemini: no messages")
	}

	ctx, cancel := context.WithCancel(ctx)
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		cancel()
		return nil, geminiErr(err)
	}

	model := client.GenerativeModel(p.model)
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}

	var system []genai.Part
	var history []*genai.Content
	for _, m := range msgs[:len(msgs)-1] {
		switch m.Role {
		case RoleSystem:
			system = append(system, genai.Text(m.Content))
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: system}
	}

	cs := model.StartChat()
	cs.History = history
	iter := cs.SendMessageStream(ctx, genai.Text(msgs[len(msgs)-1].Content))

	first, err := iter.Next()
	if err != nil && !errors.Is(err, iterator.Done) {
		_ = client.Close()
		cancel()
		return nil, geminiErr(err)
	}

	seg, pw := newPipeSegment(cancel)
	go func() {
		defer client.Close()
		reason := FinishUnknown
		resp := first
		var err error
		for resp != nil {
			text, r := geminiChunk(resp)
			if r != FinishUnknown {
				reason = r
			}
			if text != "" {
				if _, err = io.WriteString(pw, text); err != nil {
					break
				}
			}
			resp, err = iter.Next()
		}
		if errors.Is(err, iterator.Done) {
			err = nil
		} else if err != nil {
			err = geminiErr(err)
		}
		seg.finish <- reason
		_ = pw.CloseWithError(err)
	}()
	return seg, nil
}

func geminiChunk(resp *genai.GenerateContentResponse) (string, FinishReason) {
	if len(resp.Candidates) == 0 {
		return "", FinishUnknown
	}
	c := resp.Candidates[0]
	var b strings.Builder
	if c.Content != nil {
		for _, part := range c.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
	}
	return b.String(), geminiFinish(c.FinishReason)
}

func geminiFinish(r genai.FinishReason) FinishReason {
	switch r {
	case genai.FinishReasonUnspecified:
		return FinishUnknown
	case genai.FinishReasonStop:
		return FinishStop
	case genai.FinishReasonMaxTokens:
		return FinishLength
	case genai.FinishReasonSafety, genai.FinishReasonRecitation:
		return FinishFilter
	default:
		return FinishOther
	}
}

// geminiErr maps credential failures to ErrInvalidAPIKey.
func geminiErr(err error) error {
	low := strings.ToLower(err.Error())
	if strings.Contains(low, "api key") || strings.Contains(low, "api_key") || strings.Contains(low, "permission denied") {
		return fmt.Errorf("gemini: %w: %v", ErrInvalidAPIKey, err)
	}
	return fmt.Errorf("gemini: %w", err)
}
