package turnlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KirkDiggler/turnkeep/internal/models"
)

// ErrDuplicateTurn is returned when a turn has already been logged
var ErrDuplicateTurn = errors.New("turn already logged")

const schema = `
CREATE TABLE IF NOT EXISTS turn_log (
    session_id TEXT NOT NULL,
    turn INTEGER NOT NULL,
    reason TEXT NOT NULL,
    prompt TEXT NOT NULL,
    response TEXT NOT NULL,
    status_line TEXT NOT NULL,
    variables TEXT NOT NULL,
    actor TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    PRIMARY KEY (session_id, turn)
);
`

// Config holds configuration for the SQLite turn log
type Config struct {
	// DSN is the database file, or ":memory:"
	DSN string
}

type sqliteRepository struct {
	db *sql.DB
}

// NewSQLite opens the database and creates the turn log table
func NewSQLite(cfg *Config) (*sqliteRepository, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if cfg.DSN == "" {
		return nil, errors.New("dsn cannot be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to :memory: would be its own database
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create turn log: %w", err)
	}

	return &sqliteRepository{db: db}, nil
}

// Close closes the database
func (r *sqliteRepository) Close() error {
	return r.db.Close()
}

// Append inserts a turn row
func (r *sqliteRepository) Append(ctx context.Context, input *AppendInput) error {
	if input == nil || input.Record == nil {
		return errors.New("input and record cannot be nil")
	}
	rec := input.Record
	if rec.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}

	variables, err := json.Marshal(nonNil(rec.Variables))
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO turn_log (
			session_id, turn, reason, prompt, response,
			status_line, variables, actor, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.SessionID,
		rec.Turn,
		rec.Reason,
		rec.Prompt,
		rec.Response,
		rec.StatusLine,
		string(variables),
		rec.Actor,
		createdAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("session %s turn %d: %w", rec.SessionID, rec.Turn, ErrDuplicateTurn)
		}
		return fmt.Errorf("failed to append turn: %w", err)
	}

	return nil
}

// List returns a session's turns, oldest first
func (r *sqliteRepository) List(ctx context.Context, input *ListInput) (*ListOutput, error) {
	if input == nil || input.SessionID == "" {
		return nil, errors.New("input and session ID cannot be empty")
	}

	query := `
		SELECT session_id, turn, reason, prompt, response,
			status_line, variables, actor, created_at
		FROM turn_log
		WHERE session_id = ?
		ORDER BY turn DESC
	`
	args := []any{input.SessionID}
	if input.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, input.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}
	defer rows.Close()

	var records []*models.TurnRecord
	for rows.Next() {
		var (
			rec       models.TurnRecord
			variables string
			createdAt int64
		)
		if err := rows.Scan(
			&rec.SessionID,
			&rec.Turn,
			&rec.Reason,
			&rec.Prompt,
			&rec.Response,
			&rec.StatusLine,
			&variables,
			&rec.Actor,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(variables), &rec.Variables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variables of turn %d: %w", rec.Turn, err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list turns: %w", err)
	}

	// Reverse to chronological order
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return &ListOutput{Records: records}, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
