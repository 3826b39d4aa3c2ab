// Package history persists terminal execution records for audit and
// listing. In-flight executions are never persisted; the engine stays
// restart-free by design.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/flowscript/flowscript/common/db"
)

// Record is one execution's history row.
type Record struct {
	ExecutionID string     `json:"executionId"`
	WorkflowID  string     `json:"workflowId"`
	Status      string     `json:"status"`
	StartTime   time.Time  `json:"startTime"`
	EndTime     *time.Time `json:"endTime,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Repository stores execution history.
type Repository interface {
	RecordStart(ctx context.Context, rec Record) error
	RecordFinish(ctx context.Context, executionID, status string, endTime time.Time, errMsg string) error
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]Record, error)
}

// PostgresRepository implements Repository on Postgres.
type PostgresRepository struct {
	db *db.DB
}

// NewPostgresRepository creates a repository over an open pool.
func NewPostgresRepository(database *db.DB) *PostgresRepository {
	return &PostgresRepository{db: database}
}

// EnsureSchema creates the execution table when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS execution (
			execution_id TEXT PRIMARY KEY,
			workflow_id  TEXT NOT NULL,
			status       TEXT NOT NULL,
			start_time   TIMESTAMPTZ NOT NULL,
			end_time     TIMESTAMPTZ,
			error        TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure execution schema: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS execution_workflow_idx
			ON execution (workflow_id, start_time DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure execution index: %w", err)
	}
	return nil
}

// RecordStart inserts a new execution row.
func (r *PostgresRepository) RecordStart(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO execution (execution_id, workflow_id, status, start_time)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.db.Exec(ctx, query, rec.ExecutionID, rec.WorkflowID, rec.Status, rec.StartTime)
	if err != nil {
		return fmt.Errorf("failed to record execution start: %w", err)
	}
	return nil
}

// RecordFinish updates an execution row with its terminal outcome.
func (r *PostgresRepository) RecordFinish(ctx context.Context, executionID, status string, endTime time.Time, errMsg string) error {
	query := `
		UPDATE execution
		SET status = $2, end_time = $3, error = $4
		WHERE execution_id = $1
	`

	_, err := r.db.Exec(ctx, query, executionID, status, endTime, errMsg)
	if err != nil {
		return fmt.Errorf("failed to record execution finish: %w", err)
	}
	return nil
}

// ListByWorkflow returns recent executions of one workflow.
func (r *PostgresRepository) ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]Record, error) {
	query := `
		SELECT execution_id, workflow_id, status, start_time, end_time, error
		FROM execution
		WHERE workflow_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ExecutionID,
			&rec.WorkflowID,
			&rec.Status,
			&rec.StartTime,
			&rec.EndTime,
			&rec.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return records, nil
}
