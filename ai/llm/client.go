// Package llm wraps the OpenAI-compatible gateway used for all model
// calls. Every provider behind the gateway speaks the same chat
// completion protocol, so one client covers them all.
package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Message is one chat turn handed to the model.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// Usage is the token accounting reported by the provider for one call.
// It is only available when the provider sends a usage frame; callers
// must treat a missing Usage as unknown, never as zero.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// StreamChunk is one frame of a streamed completion. Exactly one of
// the fields is meaningful per frame.
type StreamChunk struct {
	// ContentDelta is an incremental piece of the answer text.
	ContentDelta string
	// ReasoningDelta is an incremental piece of the model's reasoning
	// trace, for models that emit one.
	ReasoningDelta string
	// Usage is non-nil only on the final accounting frame.
	Usage *Usage
}

// Config configures a client for one call against the gateway.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
	// ReasoningEffort is forwarded verbatim when set (low, medium, high).
	ReasoningEffort string
	// Timeout bounds a single request. Zero means 5 minutes.
	Timeout time.Duration
}

// Client talks to the OpenAI-compatible gateway.
type Client struct {
	client  *openai.Client
	model   string
	effort  string
	maxTok  int
	temp    float32
	timeout time.Duration
}

// NewClient builds a gateway client from cfg.
func NewClient(cfg *Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = newHTTPClient()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &Client{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		effort:  cfg.ReasoningEffort,
		maxTok:  cfg.MaxTokens,
		temp:    cfg.Temperature,
		timeout: timeout,
	}
}

// newHTTPClient returns an HTTP client tuned for long-lived streaming
// responses. The overall deadline comes from the request context, not
// the transport.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   4,
		},
	}
}

// Chat performs a synchronous completion. Used for the utility calls
// (title generation, memory compression, history compaction) where
// streaming buys nothing.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, *Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTok,
		Temperature: c.temp,
		Messages:    convertMessages(messages),
	}
	if c.effort != "" {
		req.ReasoningEffort = c.effort
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("empty completion response")
	}

	usage := &Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// ChatJSON performs a synchronous completion constrained to a JSON
// object response.
func (c *Client) ChatJSON(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTok,
		Temperature: c.temp,
		Messages:    convertMessages(messages),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamChat performs a streamed completion and returns a chunk
// channel plus an error channel. The chunk channel closes when the
// stream ends; a final chunk with non-nil Usage arrives before close
// when the provider reports usage. Cancelling ctx aborts the stream.
func (c *Client) StreamChat(ctx context.Context, messages []Message) (<-chan StreamChunk, <-chan error) {
	chunkChan := make(chan StreamChunk, 16)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		req := openai.ChatCompletionRequest{
			Model:       c.model,
			MaxTokens:   c.maxTok,
			Temperature: c.temp,
			Messages:    convertMessages(messages),
			StreamOptions: &openai.StreamOptions{
				IncludeUsage: true,
			},
		}
		if c.effort != "" {
			req.ReasoningEffort = c.effort
		}

		slog.Debug("llm stream starting", "model", c.model, "messages", len(messages))
		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			select {
			case errChan <- fmt.Errorf("create stream failed: %w", err):
			case <-ctx.Done():
			}
			return
		}
		defer func() { _ = stream.Close() }()

		chunkCount := 0
		for {
			response, err := stream.Recv()
			if err != nil {
				if err == io.EOF {
					slog.Debug("llm stream completed", "model", c.model, "chunks", chunkCount)
					return
				}
				select {
				case errChan <- fmt.Errorf("stream recv failed: %w", err):
				case <-ctx.Done():
				}
				return
			}

			// The usage frame arrives after the last content choice.
			if response.Usage != nil && response.Usage.TotalTokens > 0 {
				usage := &Usage{
					PromptTokens:     response.Usage.PromptTokens,
					CompletionTokens: response.Usage.CompletionTokens,
					TotalTokens:      response.Usage.TotalTokens,
				}
				select {
				case chunkChan <- StreamChunk{Usage: usage}:
				case <-ctx.Done():
				}
				continue
			}

			if len(response.Choices) == 0 {
				continue
			}

			delta := response.Choices[0].Delta
			if delta.Content == "" && delta.ReasoningContent == "" {
				continue
			}
			chunkCount++
			select {
			case chunkChan <- StreamChunk{ContentDelta: delta.Content, ReasoningDelta: delta.ReasoningContent}:
			case <-ctx.Done():
				slog.Warn("llm stream cancelled during send", "chunks", chunkCount)
				return
			}
		}
	}()

	return chunkChan, errChan
}

func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		converted[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}
	return converted
}
