package tools

import (
	"context"
	"fmt"
	"log/slog"
)

// Database is a stand-in database tool: it validates and echoes the
// operation without touching a real backend.
type Database struct {
	connectionString string
}

func NewDatabase(connectionString string) *Database {
	return &Database{connectionString: connectionString}
}

func (d *Database) Name() string        { return "database" }
func (d *Database) Description() string { return "Query and interact with databases" }

func (d *Database) Execute(ctx context.Context, args map[string]any) (any, error) {
	operation, err := stringArg(args, "operation")
	if err != nil {
		return nil, err
	}
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}

	switch operation {
	case "select", "insert", "update", "delete":
	default:
		return nil, fmt.Errorf("unsupported operation: %s", operation)
	}

	slog.Info("database operation", "operation", operation)

	return map[string]any{
		"operation": operation,
		"query":     query,
		"result":    "Database operation executed successfully",
	}, nil
}

func (d *Database) Schema() Schema {
	return Schema{
		Name:        d.Name(),
		Description: d.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"operation": map[string]any{"type": "string", "description": "Database operation (select, insert, update, delete)"},
				"query":     map[string]any{"type": "string", "description": "SQL query"},
				"params":    map[string]any{"type": "object", "description": "Query parameters"},
			},
			"required": []string{"operation", "query"},
		},
	}
}
