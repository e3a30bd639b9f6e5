// Package anthropic adapts the Anthropic Messages API to ai.Generator.
package anthropic

import (
	"context"
	"strings"
	"unicode/utf8"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/spigell/crs-roadmap/internal/ai"
	"github.com/spigell/crs-roadmap/internal/logger"
	"github.com/spigell/crs-roadmap/internal/utils"
)

const (
	defaultModel        = "claude-sonnet-4-5-20250929"
	defaultMaxTokens    = 4096
	defaultMaxRetries   = 2
	defaultMaxLogLength = 200
)

// messages is the subset of the SDK messages service used here.
type messages interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

type Config struct {
	APIKey       string
	Model        string
	MaxTokens    int64
	MaxRetries   int
	MaxLogLength int
}

// Generator implements ai.Generator using the official anthropic-sdk-go.
type Generator struct {
	messages  messages
	model     string
	maxTokens int64
	maxLogLen int
	logger    *zap.Logger
}

// NewGenerator creates a Generator backed by the SDK. Retries on transient
// failures are delegated to the SDK's own retry policy.
func NewGenerator(cfg Config, log *zap.Logger) (*Generator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, eris.New("anthropic: api key is required")
	}

	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}

	client := sdk.NewClient(
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(retries),
	)

	return newGenerator(&client.Messages, cfg, log), nil
}

func newGenerator(m messages, cfg Config, log *zap.Logger) *Generator {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Generator{
		messages:  m,
		model:     model,
		maxTokens: maxTokens,
		maxLogLen: maxLogLen,
		logger:    logger.WithCommonFields(log, ai.ProviderAnthropic, model),
	}
}

func (g *Generator) GenerateContent(ctx context.Context, prompt string, opts ...ai.Option) (string, error) {
	if g == nil || g.messages == nil {
		return "", eris.New("anthropic: generator is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", eris.New("anthropic: prompt must not be empty")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	}

	if o := ai.Apply(opts...); o.Temperature != nil {
		params.Temperature = sdk.Float(float64(*o.Temperature))
	}

	g.logger.Debug("anthropic create message request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, g.maxLogLen)),
	)

	msg, err := g.messages.New(ctx, params)
	if err != nil {
		return "", eris.Wrap(err, "anthropic: create message")
	}

	var builder strings.Builder
	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}
		text := strings.TrimSpace(block.Text)
		if text == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(text)
	}

	output := builder.String()
	if output == "" {
		return "", eris.New("anthropic: empty response")
	}

	g.logger.Debug("anthropic create message response",
		zap.String("stop_reason", string(msg.StopReason)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
		zap.String("response_preview", utils.TruncateForLog(output, g.maxLogLen)),
	)

	return output, nil
}

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}
