// Package archive keeps a write-only SQLite transcript of conversations.
// Nothing recorded here is ever loaded back into a live session.
package archive

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"ConvoChat/internal/session"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	start_time DATETIME,
	shell TEXT
);
CREATE TABLE IF NOT EXISTS turns (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT,
	role TEXT,
	content TEXT,
	timestamp DATETIME,
	FOREIGN KEY(session_id) REFERENCES sessions(id)
);
CREATE TABLE IF NOT EXISTS resets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT,
	timestamp DATETIME,
	FOREIGN KEY(session_id) REFERENCES sessions(id)
);`

// Archive records sessions, completed turns, and resets
type Archive struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the archive database at path
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create archive tables: %w", err)
	}

	return &Archive{db: db}, nil
}

// RecordSession registers a session; recording the same session twice is a no-op
func (a *Archive) RecordSession(sess *session.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(
		"INSERT OR IGNORE INTO sessions (id, start_time, shell) VALUES (?, ?, ?)",
		sess.ID, sess.StartTime, sess.Shell,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// RecordTurns stores the turns of one exchange atomically
func (a *Archive) RecordTurns(sessionID string, turns ...session.Turn) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, turn := range turns {
		_, err = tx.Exec(
			"INSERT INTO turns (session_id, role, content, timestamp) VALUES (?, ?, ?, ?)",
			sessionID, string(turn.Role), turn.Text, turn.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to save turn: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RecordReset notes that a session's history was cleared
func (a *Archive) RecordReset(sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, err := a.db.Exec(
		"INSERT INTO resets (session_id, timestamp) VALUES (?, ?)",
		sessionID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save reset: %w", err)
	}
	return nil
}

// Close closes the database
func (a *Archive) Close() error {
	return a.db.Close()
}
