package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI streams chat completions from any OpenAI-compatible endpoint
// (OpenAI, OpenRouter, local gateways) over server-sent events.
type OpenAI struct {
	BaseURL string
	APIKey  string
	Model   string
	Client  *http.Client
}

// NewOpenAI returns an OpenAI-compatible provider. An empty baseURL selects
// the public OpenAI API.
func NewOpenAI(baseURL, apiKey, model string) *OpenAI {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if strings.TrimSpace(model) == "" {
		model = "gpt-4o-mini"
	}
	// Segments are bounded by the request context, not a client timeout.
	return &OpenAI{BaseURL: baseURL, APIKey: apiKey, Model: model, Client: &http.Client{}}
}

func (p *OpenAI) Name() string { return "openai" }

type openAIChatReq struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	Stream    bool      `json:"stream"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type openAIStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Stream sends msgs and returns once the response headers arrived, so
// credential and request errors surface before any byte is streamed.
func (p *OpenAI) Stream(ctx context.Context, msgs []Message, opts Options) (Segment, error) {
	if strings.TrimSpace(p.APIKey) == "" {
		return nil, ErrInvalidAPIKey
	}
	if p.Client == nil {
		return nil, fmt.Errorf("%w: http client is nil", ErrNotConfigured)
	}

	b, err := json.Marshal(openAIChatReq{
		Model:     p.Model,
		Messages:  msgs,
		Stream:    true,
		MaxTokens: opts.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	url := strings.TrimRight(p.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("openai: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer cancel()
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("openai: %w: %s", ErrInvalidAPIKey, msg)
		}
		return nil, fmt.Errorf("openai: %s", msg)
	}

	seg, pw := newPipeSegment(cancel)
	go func() {
		defer resp.Body.Close()
		reason, err := pumpSSE(resp.Body, pw)
		seg.finish <- reason
		_ = pw.CloseWithError(err)
	}()
	return seg, nil
}

// pumpSSE copies delta content from an OpenAI event stream into w and
// returns the last finish reason seen.
func pumpSSE(r io.Reader, w io.Writer) (FinishReason, error) {
	reason := FinishUnknown

	sc := bufio.NewScanner(r)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 2*1024*1024)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return reason, nil
		}
		var ev openAIStreamResp
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return reason, fmt.Errorf("openai: decode event: %w", err)
		}
		if ev.Error != nil && ev.Error.Message != "" {
			return reason, errors.New("openai: " + ev.Error.Message)
		}
		if len(ev.Choices) == 0 {
			continue
		}
		ch := ev.Choices[0]
		if ch.Delta.Content != "" {
			if _, err := io.WriteString(w, ch.Delta.Content); err != nil {
				return reason, err
			}
		}
		if ch.FinishReason != nil && *ch.FinishReason != "" {
			reason = openAIFinish(*ch.FinishReason)
		}
	}
	return reason, sc.Err()
}

func openAIFinish(s string) FinishReason {
	switch s {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter":
		return FinishFilter
	default:
		return FinishOther
	}
}
