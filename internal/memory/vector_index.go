package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/aldersea/questor/internal/embedding"
	"github.com/aldersea/questor/internal/vectorstore"
	"go.uber.org/zap"
)

const defaultDimension = 1024

// VectorIndex implements Index on top of a Qdrant collection, embedding
// texts with the configured Embedder.
type VectorIndex struct {
	qdrant     *vectorstore.Client
	embedder   embedding.Embedder
	collection string
	logger     *zap.Logger

	mu      sync.Mutex
	ensured bool
}

// NewVectorIndex creates a Qdrant-backed similarity index using one
// collection per agent.
func NewVectorIndex(qdrant *vectorstore.Client, embedder embedding.Embedder, collection string, logger *zap.Logger) *VectorIndex {
	return &VectorIndex{
		qdrant:     qdrant,
		embedder:   embedder,
		collection: collection,
		logger:     logger,
	}
}

// ensureCollection creates the collection on first use so Clear can simply drop it.
func (idx *VectorIndex) ensureCollection(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.ensured {
		return nil
	}
	dim := uint64(idx.embedder.Dimension())
	if dim == 0 {
		dim = defaultDimension
	}
	if err := idx.qdrant.EnsureCollection(ctx, idx.collection, dim); err != nil {
		return err
	}
	idx.ensured = true
	return nil
}

// Upsert embeds the text and stores it with its metadata as payload.
func (idx *VectorIndex) Upsert(ctx context.Context, id, text string, metadata map[string]string) error {
	if err := idx.ensureCollection(ctx); err != nil {
		return err
	}

	vectors, err := idx.embedder.Embed(ctx, []string{text})
	if err != nil {
		return fmt.Errorf("embed text: %w", err)
	}
	if len(vectors) == 0 {
		return fmt.Errorf("empty embedding result")
	}

	payload := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload["text"] = text

	return idx.qdrant.Upsert(ctx, idx.collection, id, vectors[0], payload)
}

// Query embeds the query and returns stored texts ranked by similarity.
func (idx *VectorIndex) Query(ctx context.Context, text string, k int) ([]string, error) {
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, err
	}

	vectors, err := idx.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	hits, err := idx.qdrant.Search(ctx, idx.collection, vectors[0], uint64(k))
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Payload["text"])
	}
	return texts, nil
}

// Clear drops the backing collection; the next Upsert recreates it.
func (idx *VectorIndex) Clear(ctx context.Context) error {
	idx.mu.Lock()
	idx.ensured = false
	idx.mu.Unlock()
	return idx.qdrant.DropCollection(ctx, idx.collection)
}
