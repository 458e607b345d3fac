package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"VoiceChat/internal/session"
)

// Journal keeps a local copy of every turn shown, per session. It is read
// when the backend history cannot be fetched.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the journal database at path.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite serializes writers anyway
	db.SetMaxOpenConns(1)

	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		start_time DATETIME
	);`

	createTurnsTable := `
	CREATE TABLE IF NOT EXISTS turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT,
		role TEXT,
		content TEXT,
		timestamp DATETIME,
		FOREIGN KEY(session_id) REFERENCES sessions(id)
	);`

	if _, err := db.Exec(createSessionsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}
	if _, err := db.Exec(createTurnsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create turns table: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{db: db, logger: logger}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records turns for id in order.
func (j *Journal) Append(ctx context.Context, id session.ID, turns ...session.Turn) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO sessions (id, start_time) VALUES (?, ?)",
		id.String(), now,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	for _, turn := range turns {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO turns (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
			id.String(), string(turn.Role), turn.Content, now,
		)
		if err != nil {
			return fmt.Errorf("failed to save turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	j.logger.Debug("turns journaled", "session_id", id, "count", len(turns))
	return nil
}

// Replace overwrites the journal for id with turns, e.g. after a history fetch.
func (j *Journal) Replace(ctx context.Context, id session.ID, turns []session.Turn) error {
	if err := j.Delete(ctx, id); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}
	return j.Append(ctx, id, turns...)
}

// Load returns the journaled turns for id in insertion order.
func (j *Journal) Load(ctx context.Context, id session.ID) ([]session.Turn, error) {
	rows, err := j.db.QueryContext(ctx,
		"SELECT role, content FROM turns WHERE session_id = ? ORDER BY id",
		id.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	turns := []session.Turn{}
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, session.Turn{Role: session.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}
	return turns, nil
}

// Delete removes every journaled turn for id.
func (j *Journal) Delete(ctx context.Context, id session.ID) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", id.String()); err != nil {
		return fmt.Errorf("failed to delete turns: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id.String()); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return tx.Commit()
}
