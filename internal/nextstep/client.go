package nextstep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Suggestion is the raw model answer before the service layers on caching
// and confidence bookkeeping.
type Suggestion struct {
	Next string `json:"next"`
	Who  string `json:"who"`
	Time string `json:"time"`
	Why  string `json:"why"`
}

// Client is the model boundary. Tests substitute a fake; production uses
// OpenAIClient.
type Client interface {
	Suggest(ctx context.Context, prompt string) (Suggestion, error)
}

const defaultModel = "gpt-4o-mini"

type OpenAIClient struct {
	client openai.Client
	model  string
}

type OpenAIOptions struct {
	APIKey  string
	Model   string
	BaseURL string
}

func NewOpenAIClient(opts OpenAIOptions) *OpenAIClient {
	reqOpts := []option.RequestOption{option.WithAPIKey(opts.APIKey)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	model := opts.Model
	if model == "" {
		model = defaultModel
	}
	return &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		model:  model,
	}
}

const systemPrompt = "You are a pragmatic project coach. Given the project context, answer with the single most valuable next step for the team. Keep each field short and concrete."

var suggestionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"next": map[string]any{"type": "string", "description": "The next step to take"},
		"who":  map[string]any{"type": "string", "description": "Role or person who should do it"},
		"time": map[string]any{"type": "string", "description": "Estimated time, e.g. '2 hours'"},
		"why":  map[string]any{"type": "string", "description": "One-line rationale"},
	},
	"required":             []string{"next", "who", "time", "why"},
	"additionalProperties": false,
}

func (c *OpenAIClient) Suggest(ctx context.Context, prompt string) (Suggestion, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		MaxTokens: openai.Int(300),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "next_step",
					Description: openai.String("Single recommended next step for the project team"),
					Schema:      suggestionSchema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Suggestion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Suggestion{}, errors.New("chat completion: empty response")
	}
	var s Suggestion
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &s); err != nil {
		return Suggestion{}, fmt.Errorf("decode suggestion: %w", err)
	}
	if strings.TrimSpace(s.Next) == "" {
		return Suggestion{}, errors.New("suggestion missing next field")
	}
	return s, nil
}
