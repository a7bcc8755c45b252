// Package titlegen generates conversation titles from the first
// exchange. Titles are only auto-generated while a conversation still
// carries its placeholder title; a user rename always wins.
package titlegen

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	titleTimeout      = 15 * time.Second
	titleMaxTokens    = 20
	titleTemperature  = 0.1
	titleTopP         = 0.5
	titleMaxLen       = 500
	titleMaxRuneCount = 50
)

// Generator produces conversation titles via the utility model.
type Generator struct {
	client *openai.Client
	model  string
}

// Config holds configuration for the title generator.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// NewGenerator creates a title generator.
func NewGenerator(cfg Config) *Generator {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &Generator{
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}
}

// Generate produces a title from the opening exchange.
func (g *Generator) Generate(ctx context.Context, userMessage, assistantResponse string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, titleTimeout)
	defer cancel()

	if len(userMessage) > titleMaxLen {
		userMessage = userMessage[:titleMaxLen] + "..."
	}
	if len(assistantResponse) > titleMaxLen {
		assistantResponse = assistantResponse[:titleMaxLen] + "..."
	}
	prompt := fmt.Sprintf("User message: %s\n\nAssistant response: %s\n\nGenerate a short title for this conversation.", userMessage, assistantResponse)

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   titleMaxTokens,
		Temperature: titleTemperature,
		TopP:        titleTopP,
		Stop:        []string{"\n"},
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: titleSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "title_generation",
				Strict: true,
				Schema: titleJSONSchema,
			},
		},
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, req)
	latency := time.Since(start)

	if err != nil {
		slog.Error("title generation failed",
			"model", g.model,
			"error", err,
			"latency_ms", latency.Milliseconds())
		return "", fmt.Errorf("LLM request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from LLM")
	}

	var result struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &result); err != nil {
		slog.Warn("title generation parse failed",
			"model", g.model,
			"content", resp.Choices[0].Message.Content,
			"error", err)
		return "", fmt.Errorf("parse response failed: %w", err)
	}
	if result.Title == "" {
		return "", fmt.Errorf("empty title in response")
	}

	// Rune-aware truncation for UTF-8 titles.
	runes := []rune(result.Title)
	if len(runes) > titleMaxRuneCount {
		result.Title = string(runes[:titleMaxRuneCount])
	}

	slog.Debug("title generated",
		"model", g.model,
		"title", result.Title,
		"latency_ms", latency.Milliseconds())

	return result.Title, nil
}

const titleSystemPrompt = `You generate concise titles for chat conversations.

Rules:
1. Title length: 3-8 words.
2. The title reflects the core topic of the conversation.
3. Avoid filler like "About..." or "Discussion of...".
4. A short question may serve as the title directly.
5. Keep a neutral tone.

Examples:
- "How do I connect Go to PostgreSQL?" -> "Go PostgreSQL connection"
- "Write a binary search for me" -> "Binary search implementation"
- "What's the weather like today?" -> "Weather check"
`

// titleJSONSchema defines the JSON schema for the title response.
var titleJSONSchema = &jsonSchema{
	Type:                 "object",
	AdditionalProperties: false,
	Required:             []string{"title"},
	Properties: map[string]*jsonSchema{
		"title": {
			Type:        "string",
			Description: "Generated conversation title, 3-8 words",
		},
	},
}

// jsonSchema implements json.Marshaler for OpenAI's JSON Schema format.
// The alias type prevents infinite recursion during marshaling.
type jsonSchema struct {
	Properties           map[string]*jsonSchema `json:"properties,omitempty"`
	Type                 string                 `json:"type"`
	Description          string                 `json:"description,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	AdditionalProperties bool                   `json:"additionalProperties"`
}

func (s *jsonSchema) MarshalJSON() ([]byte, error) {
	type alias jsonSchema
	return json.Marshal((*alias)(s))
}
