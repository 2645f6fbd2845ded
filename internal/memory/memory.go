// Package memory provides the agent memory backends: a vector store for
// long-term recall and a bounded conversation buffer for dialogue history.
package memory

import "context"

// Backend is the long-term memory contract agents consume. Retrieve returns
// the most similar entries first.
type Backend interface {
	Store(ctx context.Context, content string, metadata map[string]any) error
	Retrieve(ctx context.Context, query string, k int) ([]string, error)
	Clear(ctx context.Context) error
}
