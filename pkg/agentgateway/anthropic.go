package agentgateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ErrEmptyResponse is returned when the Agent answers without ever calling
// the required structured-output tool.
var ErrEmptyResponse = errors.New("agentgateway: agent returned no structured output")

// AnthropicConfig configures the concrete Anthropic-backed Agent.
type AnthropicConfig struct {
	APIKey string
	Model  anthropic.Model
	// MaxTokens bounds a single call's response.
	MaxTokens int64
	// SettleSleep is paused after every call to bound tool-gateway session
	// count; the gateway is known to accumulate sessions if not nudged.
	SettleSleep time.Duration
}

// DefaultAnthropicConfig holds the default model, max tokens and settle
// sleep; it sets no per-call timeout.
var DefaultAnthropicConfig = AnthropicConfig{
	Model:       anthropic.ModelClaudeSonnet4_5,
	MaxTokens:   8192,
	SettleSleep: 500 * time.Millisecond,
}

// AnthropicAgent implements Agent by forcing the model to answer through a
// single structured-output tool call per request.
type AnthropicAgent struct {
	client anthropic.Client
	config AnthropicConfig
}

// NewAnthropicAgent builds an Agent backed by the Anthropic Messages API.
// APIKey falls back to the ANTHROPIC_API_KEY environment variable if empty,
// matching the SDK's own default client behavior.
func NewAnthropicAgent(config AnthropicConfig) *AnthropicAgent {
	opts := []option.RequestOption{}
	if config.APIKey != "" {
		opts = append(opts, option.WithAPIKey(config.APIKey))
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultAnthropicConfig.MaxTokens
	}
	if config.Model == "" {
		config.Model = DefaultAnthropicConfig.Model
	}
	if config.SettleSleep == 0 {
		config.SettleSleep = DefaultAnthropicConfig.SettleSleep
	}
	return &AnthropicAgent{
		client: anthropic.NewClient(opts...),
		config: config,
	}
}

// Invoke sends one message, forcing a tool call against req.SchemaName, and
// afterward pauses for the settle sleep regardless of outcome. No gateway
// session reset is performed.
func (a *AnthropicAgent) Invoke(ctx context.Context, req Request) (*Result, error) {
	defer a.settle(ctx)

	tool := anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        req.SchemaName,
			Description: anthropic.String(req.SchemaDescription),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: req.Schema["properties"],
				Required:   toStringSlice(req.Schema["required"]),
			},
		},
	}

	params := anthropic.MessageNewParams{
		Model:     a.config.Model,
		MaxTokens: a.config.MaxTokens,
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Tools: []anthropic.ToolUnionParam{tool},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.SchemaName},
		},
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("agent invocation: %w", err)
	}

	result := &Result{}
	found := false
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.ToolUseBlock:
			if variant.Name == req.SchemaName {
				result.Data = variant.Input
				found = true
			}
		case anthropic.TextBlock:
			result.Artifact += variant.Text
		}
	}

	if !found {
		return nil, ErrEmptyResponse
	}
	return result, nil
}

// settle sleeps for SettleSleep after a call (returning early if ctx is
// done); it makes no call to the gateway itself.
func (a *AnthropicAgent) settle(ctx context.Context) {
	if a.config.SettleSleep <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(a.config.SettleSleep):
	}
	slog.Debug("agent gateway settled", "sleep", a.config.SettleSleep)
}

func toStringSlice(v any) []string {
	raw, ok := v.([]string)
	if ok {
		return raw
	}
	anySlice, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(anySlice))
	for _, item := range anySlice {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
