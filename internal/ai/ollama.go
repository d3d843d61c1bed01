package ai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/suPer8Hu/echo-chat/internal/common"
)

// OllamaProvider calls a local Ollama server through its native /api/chat.
type OllamaProvider struct {
	client  *resty.Client
	model   string
	timeout time.Duration
}

type ollamaOptions struct {
	Temperature float32 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatReq struct {
	Model    string        `json:"model"`
	Messages []Message     `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaChatResp struct {
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

func NewOllamaProvider(baseURL, model string, timeout time.Duration) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3:latest"
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &OllamaProvider{
		client:  resty.New().SetBaseURL(baseURL),
		model:   model,
		timeout: timeout,
	}
}

func (p *OllamaProvider) ModelName() string { return p.model }

func (p *OllamaProvider) body(messages []Message, opts Options, stream bool) ollamaChatReq {
	return ollamaChatReq{
		Model:    p.model,
		Messages: messages,
		Stream:   stream,
		Options:  ollamaOptions{Temperature: opts.Temperature, NumPredict: opts.MaxTokens},
	}
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var decoded ollamaChatResp
	resp, err := p.client.R().
		SetContext(cctx).
		SetBody(p.body(messages, opts, false)).
		SetResult(&decoded).
		ForceContentType("application/json").
		Post("/api/chat")
	if err != nil {
		return "", fmt.Errorf("%w: ollama: %v", common.ErrModelUnavailable, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: ollama: status %d", common.ErrModelUnavailable, resp.StatusCode())
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("%w: ollama: %s", common.ErrModelUnavailable, decoded.Error)
	}
	return decoded.Message.Content, nil
}

// StreamChat reads Ollama's newline-delimited JSON stream.
func (p *OllamaProvider) StreamChat(ctx context.Context, messages []Message, opts Options) (<-chan string, <-chan error) {
	chunks := make(chan string, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		cctx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		resp, err := p.client.R().
			SetContext(cctx).
			SetBody(p.body(messages, opts, true)).
			SetDoNotParseResponse(true).
			Post("/api/chat")
		if err != nil {
			errs <- fmt.Errorf("%w: ollama: %v", common.ErrModelUnavailable, err)
			return
		}
		body := resp.RawBody()
		defer body.Close()

		if resp.IsError() {
			errs <- fmt.Errorf("%w: ollama: status %d", common.ErrModelUnavailable, resp.StatusCode())
			return
		}

		sc := bufio.NewScanner(body)
		sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

		for sc.Scan() {
			line := sc.Bytes()
			if len(line) == 0 {
				continue
			}
			var decoded ollamaChatResp
			if err := json.Unmarshal(line, &decoded); err != nil {
				errs <- fmt.Errorf("%w: ollama: %v", common.ErrModelUnavailable, err)
				return
			}
			if decoded.Error != "" {
				errs <- fmt.Errorf("%w: ollama: %s", common.ErrModelUnavailable, decoded.Error)
				return
			}
			if decoded.Message.Content != "" {
				select {
				case chunks <- decoded.Message.Content:
				case <-cctx.Done():
					if ctx.Err() == nil {
						errs <- fmt.Errorf("%w: ollama: %v", common.ErrModelUnavailable, cctx.Err())
					}
					return
				}
			}
			if decoded.Done {
				return
			}
		}
		if err := sc.Err(); err != nil && ctx.Err() == nil {
			errs <- fmt.Errorf("%w: ollama: %v", common.ErrModelUnavailable, err)
		}
	}()

	return chunks, errs
}
