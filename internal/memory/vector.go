package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ksofianos/cadre/internal/config"
	chromem "github.com/philippgille/chromem-go"
)

const embeddingDim = 128

// Vector is a Backend on top of the chromem-go embedded vector database.
// With an empty path it runs fully in memory; otherwise entries persist
// across restarts.
type Vector struct {
	db         *chromem.DB
	collection string
	embed      chromem.EmbeddingFunc

	mu  sync.Mutex
	seq int
}

// NewVector opens (or creates) the vector store described by cfg. A nil
// embed falls back to the local token-hash embedder, which needs no
// external service.
func NewVector(cfg config.MemoryConfig, embed chromem.EmbeddingFunc) (*Vector, error) {
	if embed == nil {
		embed = localEmbedding
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "agent_memory"
	}

	var db *chromem.DB
	if cfg.Path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create memory dir: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.Path, cfg.Compress)
		if err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	}

	v := &Vector{
		db:         db,
		collection: collection,
		embed:      embed,
	}
	if _, err := db.GetOrCreateCollection(collection, nil, embed); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	slog.Info("vector memory initialized", "collection", collection, "path", cfg.Path)
	return v, nil
}

func (v *Vector) Store(ctx context.Context, content string, metadata map[string]any) error {
	col, err := v.db.GetOrCreateCollection(v.collection, nil, v.embed)
	if err != nil {
		return fmt.Errorf("get collection: %w", err)
	}

	v.mu.Lock()
	v.seq++
	id := fmt.Sprintf("doc_%d_%d", time.Now().UnixNano(), v.seq)
	v.mu.Unlock()

	meta := make(map[string]string, len(metadata)+1)
	for k, val := range metadata {
		meta[k] = fmt.Sprint(val)
	}
	meta["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	doc := chromem.Document{
		ID:       id,
		Content:  content,
		Metadata: meta,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

func (v *Vector) Retrieve(ctx context.Context, query string, k int) ([]string, error) {
	col, err := v.db.GetOrCreateCollection(v.collection, nil, v.embed)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}

	// chromem requires nResults <= document count
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Content
	}
	return texts, nil
}

func (v *Vector) Clear(ctx context.Context) error {
	if err := v.db.DeleteCollection(v.collection); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if _, err := v.db.GetOrCreateCollection(v.collection, nil, v.embed); err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	return nil
}

// localEmbedding maps text to a fixed-dimension vector by hashing tokens
// into buckets. It is deterministic and runs offline; recall quality is
// token-overlap based rather than semantic, which is sufficient for the
// default single-node setup and for tests.
func localEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%embeddingDim]++
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		// Avoid a zero vector so cosine similarity stays defined.
		vec[0] = 1
		return vec, nil
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec, nil
}
