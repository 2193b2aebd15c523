package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aldersea/questor/internal/agent"
	"github.com/jackc/pgx/v5"
)

// Run statuses as persisted. A run moves pending -> running -> done/failed.
const (
	RunPending = "pending"
	RunRunning = "running"
	RunDone    = "done"
	RunFailed  = "failed"
)

// ErrRunNotFound reports an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one goal execution as stored.
type Run struct {
	ID         string            `json:"id"`
	Goal       string            `json:"goal"`
	Status     string            `json:"status"`
	Response   string            `json:"response,omitempty"`
	Steps      []agent.StepTrace `json:"steps,omitempty"`
	StepsTaken int               `json:"steps_taken"`
	CreatedAt  time.Time         `json:"created_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// CreateRun inserts a pending run and returns its id.
func (s *Store) CreateRun(ctx context.Context, goal string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO runs (id, goal, status)
		VALUES (gen_random_uuid(), $1, $2)
		RETURNING id`,
		goal, RunPending,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

// MarkRunning transitions a run to running.
func (s *Store) MarkRunning(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE runs SET status = $2 WHERE id = $1`, id, RunRunning)
	if err != nil {
		return fmt.Errorf("mark running: %w", err)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (s *Store) FinishRun(ctx context.Context, id, status, response string, steps []agent.StepTrace, stepsTaken int) error {
	var stepsJSON []byte
	if len(steps) > 0 {
		var err error
		stepsJSON, err = json.Marshal(steps)
		if err != nil {
			return fmt.Errorf("marshal steps: %w", err)
		}
	}

	_, err := s.db.Exec(ctx, `
		UPDATE runs
		SET status = $2, response = $3, steps = $4, steps_taken = $5, finished_at = now()
		WHERE id = $1`,
		id, status, response, stepsJSON, stepsTaken,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// GetRun fetches one run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	var r Run
	var stepsJSON []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, goal, status, COALESCE(response, ''), steps, steps_taken, created_at, finished_at
		FROM runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.Goal, &r.Status, &r.Response, &stepsJSON, &r.StepsTaken, &r.CreatedAt, &r.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if len(stepsJSON) > 0 {
		if err := json.Unmarshal(stepsJSON, &r.Steps); err != nil {
			return nil, fmt.Errorf("unmarshal steps: %w", err)
		}
	}
	return &r, nil
}

// ListRuns returns recent runs, newest first. Step traces are omitted.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, goal, status, COALESCE(response, ''), steps_taken, created_at, finished_at
		FROM runs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Goal, &r.Status, &r.Response, &r.StepsTaken, &r.CreatedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, nil
}
