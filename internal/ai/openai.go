package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	openai "github.com/sashabaranov/go-openai"
	"github.com/suPer8Hu/echo-chat/internal/common"
)

const (
	OpenAIBaseURL = "https://api.openai.com/v1"
	GroqBaseURL   = "https://api.groq.com/openai/v1"

	openAIDefaultModel = "gpt-3.5-turbo"
	groqDefaultModel   = "llama-3.3-70b-versatile"
)

// ResolveEndpoint picks base URL and model for a credential. Groq keys
// (gsk_ prefix) go to Groq; anything else to OpenAI. Non-empty overrides win.
func ResolveEndpoint(apiKey, baseURL, model string) (string, string) {
	defBase, defModel := OpenAIBaseURL, openAIDefaultModel
	if strings.HasPrefix(strings.TrimSpace(apiKey), "gsk_") {
		defBase, defModel = GroqBaseURL, groqDefaultModel
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defBase
	}
	if strings.TrimSpace(model) == "" {
		model = defModel
	}
	return strings.TrimRight(baseURL, "/"), model
}

// OpenAIProvider talks to any OpenAI-compatible /chat/completions endpoint
// (OpenAI, Groq, OpenRouter, vLLM, ...).
type OpenAIProvider struct {
	client  *resty.Client
	model   string
	timeout time.Duration
}

func NewOpenAIProvider(baseURL, apiKey, model string, timeout time.Duration) *OpenAIProvider {
	baseURL, model = ResolveEndpoint(apiKey, baseURL, model)
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	return &OpenAIProvider{client: client, model: model, timeout: timeout}
}

func (p *OpenAIProvider) ModelName() string { return p.model }

func (p *OpenAIProvider) request(messages []Message, opts Options, stream bool) openai.ChatCompletionRequest {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    out,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      stream,
	}
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var decoded openai.ChatCompletionResponse
	var apiErr openai.ErrorResponse
	resp, err := p.client.R().
		SetContext(cctx).
		SetBody(p.request(messages, opts, false)).
		SetResult(&decoded).
		SetError(&apiErr).
		ForceContentType("application/json").
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%w: openai: %v", common.ErrModelUnavailable, err)
	}
	if resp.IsError() {
		msg := fmt.Sprintf("status %d", resp.StatusCode())
		if apiErr.Error != nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
		}
		return "", fmt.Errorf("%w: openai: %s", common.ErrModelUnavailable, msg)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("%w: openai: empty response", common.ErrModelUnavailable)
	}
	return decoded.Choices[0].Message.Content, nil
}

// StreamChat streams assistant content chunks via SSE.
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []Message, opts Options) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		fail := func(err error) {
			errs <- fmt.Errorf("%w: openai: %v", common.ErrModelUnavailable, err)
		}

		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		resp, err := p.client.R().
			SetContext(cctx).
			SetBody(p.request(messages, opts, true)).
			SetHeader("Accept", "text/event-stream").
			SetDoNotParseResponse(true).
			Post("/chat/completions")
		if err != nil {
			fail(err)
			return
		}
		body := resp.RawBody()
		defer body.Close()

		if resp.IsError() {
			fail(fmt.Errorf("status %d", resp.StatusCode()))
			return
		}

		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var decoded openai.ChatCompletionStreamResponse
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				fail(err)
				return
			}
			if len(decoded.Choices) == 0 {
				continue
			}
			if delta := decoded.Choices[0].Delta.Content; delta != "" {
				select {
				case chunks <- delta:
				case <-cctx.Done():
					if ctx.Err() == nil {
						fail(cctx.Err())
					}
					return
				}
			}
		}
		// caller cancellation is not an upstream failure
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			fail(err)
		}
	}()

	return chunks, errs
}
