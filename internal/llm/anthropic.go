package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/ksofianos/cadre/internal/config"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

// Anthropic is a Provider backed by the Anthropic Messages API.
type Anthropic struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int
}

func NewAnthropic(cfg config.ProviderConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key not set")
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	slog.Info("anthropic provider initialized", "model", model)

	return &Anthropic{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

func (a *Anthropic) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	model := a.model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := a.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	temperature := a.temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic generate: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(variant.Text)
		}
	}
	return sb.String(), nil
}

// GenerateStructured asks for JSON matching the schema and parses the reply.
func (a *Anthropic) GenerateStructured(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	enhanced := fmt.Sprintf("%s\n\nRespond with ONLY a JSON object matching this schema, no prose:\n%s", prompt, schemaJSON)
	text, err := a.Generate(ctx, enhanced, Options{})
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(extractJSON(text)), &out); err != nil {
		return nil, fmt.Errorf("parse structured response: %w", err)
	}
	return out, nil
}

// extractJSON strips markdown code fences and surrounding prose so the
// response body can be unmarshalled even when the model decorates it.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+3:]
		text = strings.TrimPrefix(text, "json")
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
	}
	if i := strings.IndexByte(text, '{'); i > 0 {
		text = text[i:]
	}
	return strings.TrimSpace(text)
}
