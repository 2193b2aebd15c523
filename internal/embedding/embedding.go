package embedding

import (
	"context"
	"fmt"

	"github.com/aldersea/questor/internal/config"
)

// Embedder turns text into vectors for similarity search.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// New builds an Embedder from configuration.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "api", "":
		return NewOpenAIEmbedder(cfg), nil
	case "local":
		return NewOllamaEmbedder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
