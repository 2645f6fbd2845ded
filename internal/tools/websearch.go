package tools

import (
	"context"
	"fmt"
	"log/slog"
)

// WebSearch is a stand-in search tool. It returns synthetic results; wiring
// a real search API means replacing Execute only, the schema stays stable.
type WebSearch struct{}

func NewWebSearch() *WebSearch { return &WebSearch{} }

func (w *WebSearch) Name() string        { return "web_search" }
func (w *WebSearch) Description() string { return "Search the web for information" }

func (w *WebSearch) Execute(ctx context.Context, args map[string]any) (any, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}

	numResults := 5
	if n, ok := args["num_results"].(float64); ok && n > 0 {
		numResults = int(n)
	}

	slog.Info("executing web search", "query", query, "num_results", numResults)

	results := make([]map[string]any, numResults)
	for i := range results {
		results[i] = map[string]any{
			"title":   fmt.Sprintf("Result %d", i),
			"url":     fmt.Sprintf("https://example.com/%d", i),
			"snippet": "...",
		}
	}
	return map[string]any{
		"query":   query,
		"results": results,
	}, nil
}

func (w *WebSearch) Schema() Schema {
	return Schema{
		Name:        w.Name(),
		Description: w.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":       map[string]any{"type": "string", "description": "Search query"},
				"num_results": map[string]any{"type": "integer", "description": "Number of results"},
			},
			"required": []string{"query"},
		},
	}
}
