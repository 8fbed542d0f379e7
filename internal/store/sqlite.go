package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	apperrors "github.com/reptrack/backend/internal/errors"
	"github.com/reptrack/backend/internal/models"
)

// SQLiteStore implements Store on a local SQLite database. Records and
// mutations are stored as JSON blobs so the schema never has to track the
// domain payload.
type SQLiteStore struct {
	db *sql.DB
}

// schema is applied on open. The pending_mutations seq column preserves
// FIFO enqueue order across restarts.
const schema = `
CREATE TABLE IF NOT EXISTS exercises (
	local_id   TEXT PRIMARY KEY,
	server_id  TEXT,
	updated_at TEXT,
	payload    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_exercises_server_id ON exercises(server_id);

CREATE TABLE IF NOT EXISTS pending_mutations (
	seq     INTEGER PRIMARY KEY AUTOINCREMENT,
	id      TEXT UNIQUE NOT NULL,
	payload TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_profile (
	id      INTEGER PRIMARY KEY CHECK(id = 1),
	payload TEXT NOT NULL
);
`

// Open opens (creating if needed) the sync database under dataDir.
// The database is opened with WAL mode and a single writer, which is all
// SQLite supports anyway.
func Open(dataDir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "reptrack.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to apply schema", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadExercises returns every cached exercise.
func (s *SQLiteStore) LoadExercises() ([]*models.Exercise, error) {
	rows, err := s.db.Query("SELECT payload FROM exercises")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to load exercises", err)
	}
	defer rows.Close()

	var exercises []*models.Exercise
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan exercise row", err)
		}
		var e models.Exercise
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "corrupt exercise payload", err)
		}
		exercises = append(exercises, &e)
	}
	return exercises, rows.Err()
}

// PutExercise upserts a single exercise keyed by its local id.
func (s *SQLiteStore) PutExercise(e *models.Exercise) error {
	return s.putExerciseTx(s.db, e)
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

func (s *SQLiteStore) putExerciseTx(tx execer, e *models.Exercise) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to encode exercise", err)
	}

	query := `
	INSERT INTO exercises (local_id, server_id, updated_at, payload)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(local_id) DO UPDATE SET
		server_id = excluded.server_id,
		updated_at = excluded.updated_at,
		payload = excluded.payload
	`
	updatedAt := ""
	if !e.UpdatedAt.IsZero() {
		updatedAt = e.UpdatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	if _, err := tx.Exec(query, e.LocalID, e.ServerID, updatedAt, string(payload)); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to upsert exercise", err)
	}
	return nil
}

// PutExercises upserts a batch of exercises in one transaction.
func (s *SQLiteStore) PutExercises(exercises []*models.Exercise) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}
	for _, e := range exercises {
		if err := s.putExerciseTx(tx, e); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ReplaceExercises atomically replaces the whole cached set.
func (s *SQLiteStore) ReplaceExercises(exercises []*models.Exercise) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}
	if _, err := tx.Exec("DELETE FROM exercises"); err != nil {
		tx.Rollback()
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear exercises", err)
	}
	for _, e := range exercises {
		if err := s.putExerciseTx(tx, e); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// DeleteExercise removes an exercise by local id.
func (s *SQLiteStore) DeleteExercise(localID string) error {
	if _, err := s.db.Exec("DELETE FROM exercises WHERE local_id = ?", localID); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to delete exercise", err)
	}
	return nil
}

// CountExercises returns the number of cached exercises.
func (s *SQLiteStore) CountExercises() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM exercises").Scan(&count); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorage, "failed to count exercises", err)
	}
	return count, nil
}

// LoadMutations returns the pending-mutation log in enqueue order.
func (s *SQLiteStore) LoadMutations() ([]*models.PendingMutation, error) {
	rows, err := s.db.Query("SELECT payload FROM pending_mutations ORDER BY seq ASC")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to load mutations", err)
	}
	defer rows.Close()

	var mutations []*models.PendingMutation
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to scan mutation row", err)
		}
		var m models.PendingMutation
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorage, "corrupt mutation payload", err)
		}
		mutations = append(mutations, &m)
	}
	return mutations, rows.Err()
}

// ReplaceMutations atomically replaces the pending-mutation log, preserving
// the given order. The queue persists itself through this after every change
// so a restart mid-queue loses no work.
func (s *SQLiteStore) ReplaceMutations(mutations []*models.PendingMutation) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to begin transaction", err)
	}
	if _, err := tx.Exec("DELETE FROM pending_mutations"); err != nil {
		tx.Rollback()
		return apperrors.Wrap(apperrors.ErrStorage, "failed to clear mutations", err)
	}
	for _, m := range mutations {
		payload, err := json.Marshal(m)
		if err != nil {
			tx.Rollback()
			return apperrors.Wrap(apperrors.ErrStorage, "failed to encode mutation", err)
		}
		if _, err := tx.Exec(
			"INSERT INTO pending_mutations (id, payload) VALUES (?, ?)",
			m.ID, string(payload),
		); err != nil {
			tx.Rollback()
			return apperrors.Wrap(apperrors.ErrStorage, "failed to insert mutation", err)
		}
	}
	return tx.Commit()
}

// LoadProfile returns the user profile, or nil when none is stored.
func (s *SQLiteStore) LoadProfile() (*models.UserProfile, error) {
	var payload string
	err := s.db.QueryRow("SELECT payload FROM user_profile WHERE id = 1").Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "failed to load profile", err)
	}

	var p models.UserProfile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorage, "corrupt profile payload", err)
	}
	return &p, nil
}

// SaveProfile upserts the single user profile row.
func (s *SQLiteStore) SaveProfile(p *models.UserProfile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to encode profile", err)
	}
	query := `
	INSERT INTO user_profile (id, payload) VALUES (1, ?)
	ON CONFLICT(id) DO UPDATE SET payload = excluded.payload
	`
	if _, err := s.db.Exec(query, string(payload)); err != nil {
		return apperrors.Wrap(apperrors.ErrStorage, "failed to save profile", err)
	}
	return nil
}
