// Package tools defines the capability interface agents extend themselves
// with, plus the built-in tool set.
package tools

import (
	"context"
	"fmt"
)

// Schema describes a tool for model function calling.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Tool interface {
	Name() string
	Description() string
	Execute(ctx context.Context, args map[string]any) (any, error)
	Schema() Schema
}

// Custom wraps a plain function as a Tool.
type Custom struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

func NewCustom(name, description string, parameters map[string]any, fn func(ctx context.Context, args map[string]any) (any, error)) *Custom {
	return &Custom{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

func (c *Custom) Name() string        { return c.name }
func (c *Custom) Description() string { return c.description }

func (c *Custom) Execute(ctx context.Context, args map[string]any) (any, error) {
	return c.fn(ctx, args)
}

func (c *Custom) Schema() Schema {
	return Schema{Name: c.name, Description: c.description, Parameters: c.parameters}
}

// ByName resolves the built-in tools referenced from agent definitions.
func ByName(name string) (Tool, error) {
	switch name {
	case "web_search":
		return NewWebSearch(), nil
	case "calculator":
		return NewCalculator(), nil
	case "database":
		return NewDatabase(""), nil
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	return s, nil
}
