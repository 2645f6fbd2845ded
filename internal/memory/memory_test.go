package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/ksofianos/cadre/internal/config"
)

func newTestVector(t *testing.T) *Vector {
	t.Helper()
	v, err := NewVector(config.MemoryConfig{Collection: "test"}, nil)
	if err != nil {
		t.Fatalf("new vector: %v", err)
	}
	return v
}

func TestVectorStoreRetrieve(t *testing.T) {
	v := newTestVector(t)
	ctx := context.Background()

	entries := []string{
		"the capital of France is Paris",
		"Go channels synchronize goroutines",
		"sqlite stores data in a single file",
	}
	for _, e := range entries {
		if err := v.Store(ctx, e, nil); err != nil {
			t.Fatalf("store: %v", err)
		}
	}

	got, err := v.Retrieve(ctx, "what is the capital of France", 1)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if !strings.Contains(got[0], "Paris") {
		t.Errorf("expected the Paris entry, got %q", got[0])
	}
}

func TestVectorRetrieveEmpty(t *testing.T) {
	v := newTestVector(t)

	got, err := v.Retrieve(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no results from empty store, got %d", len(got))
	}
}

func TestVectorKLargerThanCount(t *testing.T) {
	v := newTestVector(t)
	ctx := context.Background()

	if err := v.Store(ctx, "only entry", nil); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := v.Retrieve(ctx, "entry", 10)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 result, got %d", len(got))
	}
}

func TestVectorClear(t *testing.T) {
	v := newTestVector(t)
	ctx := context.Background()

	if err := v.Store(ctx, "to be removed", nil); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := v.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}

	got, err := v.Retrieve(ctx, "removed", 5)
	if err != nil {
		t.Fatalf("retrieve after clear: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty store after clear, got %d results", len(got))
	}
}

func TestVectorPersistence(t *testing.T) {
	dir := t.TempDir()
	cfg := config.MemoryConfig{Path: dir, Collection: "persist"}
	ctx := context.Background()

	v, err := NewVector(cfg, nil)
	if err != nil {
		t.Fatalf("new vector: %v", err)
	}
	if err := v.Store(ctx, "durable fact", nil); err != nil {
		t.Fatalf("store: %v", err)
	}

	// Reopen from the same path
	v2, err := NewVector(cfg, nil)
	if err != nil {
		t.Fatalf("reopen vector: %v", err)
	}
	got, err := v2.Retrieve(ctx, "durable fact", 1)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(got) != 1 || got[0] != "durable fact" {
		t.Errorf("expected persisted entry, got %v", got)
	}
}

func TestLocalEmbeddingDeterministic(t *testing.T) {
	a, err := localEmbedding(context.Background(), "hello world")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	b, _ := localEmbedding(context.Background(), "hello world")
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("expected identical embeddings for identical text")
		}
	}

	empty, err := localEmbedding(context.Background(), "")
	if err != nil {
		t.Fatalf("embed empty: %v", err)
	}
	var norm float32
	for _, x := range empty {
		norm += x * x
	}
	if norm == 0 {
		t.Error("expected non-zero vector for empty text")
	}
}

func TestConversationTrim(t *testing.T) {
	c := NewConversation(3)
	for _, s := range []string{"one", "two", "three", "four"} {
		c.Add("user", s)
	}

	msgs := c.Messages(0)
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages after trim, got %d", len(msgs))
	}
	if msgs[0].Content != "two" {
		t.Errorf("expected oldest message 'two', got %q", msgs[0].Content)
	}
}

func TestConversationLastN(t *testing.T) {
	c := NewConversation(10)
	c.Add("user", "question")
	c.Add("assistant", "answer")
	c.Add("user", "followup")

	msgs := c.Messages(2)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "answer" || msgs[1].Content != "followup" {
		t.Errorf("unexpected tail: %+v", msgs)
	}
}

func TestConversationFormat(t *testing.T) {
	c := NewConversation(10)
	c.Add("user", "hi")
	c.Add("assistant", "hello")

	want := "user: hi\nassistant: hello"
	if got := c.Format(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	c.Clear()
	if got := c.Format(); got != "" {
		t.Errorf("expected empty format after clear, got %q", got)
	}
}
