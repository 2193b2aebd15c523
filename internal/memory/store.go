package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Index is the similarity-search boundary the store is built on. Ranking
// and indexing internals are opaque to the rest of the system.
type Index interface {
	// Upsert stores one text entry under the given id.
	Upsert(ctx context.Context, id, text string, metadata map[string]string) error
	// Query returns up to k stored texts ranked by similarity to text.
	Query(ctx context.Context, text string, k int) ([]string, error)
	// Clear removes every entry from the index.
	Clear(ctx context.Context) error
}

// Store is an append-only, semantically searchable log of one agent's
// interaction history. Each agent instance owns its own Store; the store
// is not safe for concurrent writers.
type Store struct {
	index  Index
	logger *zap.Logger
}

// NewStore creates a memory store over the given index.
func NewStore(index Index, logger *zap.Logger) *Store {
	return &Store{index: index, logger: logger}
}

// Add appends one record. The caller's metadata is copied, then stamped
// with the current time; the record id is generated at the same instant.
func (s *Store) Add(ctx context.Context, text string, metadata map[string]string) error {
	now := time.Now()

	stamped := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		stamped[k] = v
	}
	stamped["timestamp"] = now.Format(time.RFC3339Nano)

	id := uuid.New().String()
	if err := s.index.Upsert(ctx, id, text, stamped); err != nil {
		return fmt.Errorf("memory add: %w", err)
	}
	s.logger.Debug("memory record added", zap.String("id", id))
	return nil
}

// Search returns up to limit distinct texts ranked by similarity to query.
// Duplicate texts across hits are collapsed, keeping first-seen rank order.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 5
	}
	hits, err := s.index.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("memory search: %w", err)
	}

	seen := make(map[string]bool, len(hits))
	unique := make([]string, 0, len(hits))
	for _, text := range hits {
		if seen[text] {
			continue
		}
		seen[text] = true
		unique = append(unique, text)
		if len(unique) >= limit {
			break
		}
	}
	return unique, nil
}

// Clear destructively empties the store. Clearing an already-empty store
// is a no-op.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.index.Clear(ctx); err != nil {
		return fmt.Errorf("memory clear: %w", err)
	}
	return nil
}
