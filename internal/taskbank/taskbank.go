// Package taskbank reads problems and their hidden test batteries.
// Authoring and administration of the bank happen elsewhere; the judging
// core only ever reads it.
package taskbank

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"arena/internal/sandbox"
	"arena/pkg/errors"
)

const queryTimeout = 5 * time.Second

// Task is the descriptive part of a problem.
type Task struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Difficulty string `json:"difficulty,omitempty"`
	Topic      string `json:"topic,omitempty"`
}

// Provider serves tasks and ordered test batteries.
type Provider interface {
	Task(ctx context.Context, taskID int64) (*Task, error)
	Tests(ctx context.Context, taskID int64) ([]sandbox.TestCase, error)
}

// MySQLProvider reads the bank from MySQL.
type MySQLProvider struct {
	db *sql.DB
}

// NewMySQLProvider wraps an open connection pool.
func NewMySQLProvider(db *sql.DB) *MySQLProvider {
	return &MySQLProvider{db: db}
}

func (p *MySQLProvider) Task(ctx context.Context, taskID int64) (*Task, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		task       Task
		difficulty sql.NullString
		topic      sql.NullString
	)
	err := p.db.QueryRowContext(ctx,
		`SELECT id, title, difficulty, topic FROM tasks WHERE id = ?`, taskID).
		Scan(&task.ID, &task.Title, &difficulty, &topic)
	if err == sql.ErrNoRows {
		return nil, errors.New(errors.TaskNotFound)
	}
	if err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "fetch task %d", taskID)
	}
	task.Difficulty = difficulty.String
	task.Topic = topic.String
	return &task, nil
}

// Tests returns the ordered battery for a task. Inputs and expected
// outputs are normalized to Unix line endings before they reach the
// sandbox so verdicts never hinge on how the bank was authored.
func (p *MySQLProvider) Tests(ctx context.Context, taskID int64) ([]sandbox.TestCase, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
		SELECT test_input, expected_output, time_limit
		FROM tests WHERE task_id = ? ORDER BY id`, taskID)
	if err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "fetch tests for task %d", taskID)
	}
	defer rows.Close()

	var tests []sandbox.TestCase
	for rows.Next() {
		var (
			input    sql.NullString
			expected sql.NullString
			limit    sql.NullFloat64
		)
		if err := rows.Scan(&input, &expected, &limit); err != nil {
			return nil, errors.Wrapf(err, errors.DatabaseError, "scan test row")
		}
		tc := sandbox.TestCase{
			Input:          normalizeNewlines(input.String),
			ExpectedOutput: normalizeNewlines(expected.String),
			TimeLimit:      limit.Float64,
		}
		if tc.TimeLimit <= 0 {
			tc.TimeLimit = 1.0
		}
		tests = append(tests, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, errors.DatabaseError, "iterate tests for task %d", taskID)
	}
	if len(tests) == 0 {
		return nil, errors.New(errors.TestsNotFound)
	}
	return tests, nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}
