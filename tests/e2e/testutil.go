package e2e

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aldersea/questor/internal/provider"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("questor_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	url := "redis://" + endpoint
	cleanup := func() { container.Terminate(ctx) }
	return url, cleanup, nil
}

// scriptedCompleter stands in for a real LLM: plans one tool step per goal
// and responds from the tool result, so runs are fully deterministic.
type scriptedCompleter struct{}

func (scriptedCompleter) Complete(ctx context.Context, messages []provider.Message, temperature float64) (string, error) {
	system := messages[0].Content
	user := messages[len(messages)-1].Content
	switch {
	case strings.Contains(system, "task planning expert"):
		return "1. Compute the expression with the calculator", nil
	case strings.Contains(system, "explains results"):
		return "The computed result is shown above: " + user, nil
	default:
		return `{"thought": "compute it", "action": "calculator", "action_input": "123*456"}`, nil
	}
}

// memoryIndex is an in-process stand-in for the vector index.
type memoryIndex struct {
	mu    sync.Mutex
	texts []string
}

func (m *memoryIndex) Upsert(ctx context.Context, id, text string, metadata map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *memoryIndex) Query(ctx context.Context, text string, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.texts))
	copy(out, m.texts)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = nil
	return nil
}
