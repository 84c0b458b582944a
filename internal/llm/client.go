// Package llm wraps the OpenAI chat completions API for structured output.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"blogwriter/api/internal/metrics"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"
)

var ErrEmptyResponse = errors.New("llm returned no choices")

type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
}

// Request describes one structured completion. Schema is a JSON schema
// object the reply must satisfy.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	SchemaName   string
	Schema       map[string]any
	MaxTokens    int
	Temperature  *float64
}

type Client struct {
	openai openai.Client
	model  string
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{openai: openai.NewClient(opts...), model: model, logger: logger}
}

func (c *Client) Model() string {
	return c.model
}

// Chat runs the completion and decodes the JSON reply into result.
func (c *Client) Chat(ctx context.Context, req Request, result any) (err error) {
	defer func() { metrics.Upstream("openai", err) }()

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 400
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		MaxTokens: openai.Int(int64(maxTokens)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.SchemaName,
					Schema: req.Schema,
					Strict: openai.Bool(true),
				},
			},
		},
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	start := time.Now()
	resp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai chat: %w", err)
	}
	c.logger.Debug("llm chat completed",
		zap.String("model", c.model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int64("completion_tokens", resp.Usage.CompletionTokens))

	if len(resp.Choices) == 0 {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), result); err != nil {
		return fmt.Errorf("unmarshal llm response: %w", err)
	}
	return nil
}
