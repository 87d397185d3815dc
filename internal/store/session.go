package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/ayusman/facewatch/internal/session"
)

// SessionRecord is a stored session summary.
type SessionRecord struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
	Stats     session.Stats `json:"stats"`
}

// SessionRepository records session lifecycles. It satisfies session.Recorder.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// SessionStarted inserts an open session row.
func (r *SessionRepository) SessionStarted(id string, at time.Time) error {
	_, err := r.db.Exec(`INSERT INTO sessions (id, started_at) VALUES (?, ?)`, id, at.UTC())
	return err
}

// SessionEnded closes the session row and stores its counters.
func (r *SessionRepository) SessionEnded(id string, at time.Time, stats session.Stats) error {
	result, err := r.db.Exec(
		`UPDATE sessions SET ended_at = ?, ticks = ?, dispatched = ?, dropped = ?,
		 completed = ?, failed = ?, accepted = ?, stale = ?, errors = ?
		 WHERE id = ?`,
		at.UTC(), stats.Ticks, stats.Dispatched, stats.Dropped,
		stats.Completed, stats.Failed, stats.Accepted, stats.Stale, stats.Errors,
		id,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

const sessionColumns = `id, started_at, ended_at, ticks, dispatched, dropped, completed, failed, accepted, stale, errors`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var ended sql.NullTime
	st := &rec.Stats

	err := row.Scan(&rec.ID, &rec.StartedAt, &ended,
		&st.Ticks, &st.Dispatched, &st.Dropped, &st.Completed, &st.Failed,
		&st.Accepted, &st.Stale, &st.Errors)
	if err != nil {
		return nil, err
	}

	if ended.Valid {
		rec.EndedAt = &ended.Time
	}
	return rec, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*SessionRecord, error) {
	rec, err := scanSession(r.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// List retrieves all sessions, most recent first.
func (r *SessionRepository) List() ([]*SessionRecord, error) {
	rows, err := r.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}
