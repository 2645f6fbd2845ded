package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ksofianos/cadre/internal/config"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouter is a Provider speaking the OpenAI-compatible chat completions
// API. It works against openrouter.ai or any endpoint with the same shape.
type OpenRouter struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
}

func NewOpenRouter(cfg config.ProviderConfig) (*OpenRouter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openrouter api key not set")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openrouter model not set")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	return &OpenRouter{
		httpClient:  &http.Client{Timeout: 120 * time.Second},
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (o *OpenRouter) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	model := o.model
	if opts.Model != "" {
		model = opts.Model
	}
	maxTokens := o.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	temperature := o.temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}

	body, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := o.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		b, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("openrouter chat error: %s", string(b))
	}

	var cr chatResponse
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return "", err
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("openrouter chat: empty choices")
	}
	return cr.Choices[0].Message.Content, nil
}

func (o *OpenRouter) GenerateStructured(ctx context.Context, prompt string, schema map[string]any) (map[string]any, error) {
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	enhanced := fmt.Sprintf("%s\n\nRespond with ONLY a JSON object matching this schema, no prose:\n%s", prompt, schemaJSON)
	text, err := o.Generate(ctx, enhanced, Options{})
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(extractJSON(text)), &out); err != nil {
		return nil, fmt.Errorf("parse structured response: %w", err)
	}
	return out, nil
}

// New builds the provider selected by cfg.Kind.
func New(cfg config.ProviderConfig) (Provider, error) {
	switch cfg.Kind {
	case "anthropic":
		return NewAnthropic(cfg)
	case "openrouter":
		return NewOpenRouter(cfg)
	default:
		return nil, fmt.Errorf("unknown provider kind: %s", cfg.Kind)
	}
}
