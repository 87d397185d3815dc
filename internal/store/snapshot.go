package store

import (
	"database/sql"
	"errors"
	"slices"

	"github.com/ayusman/facewatch/internal/encoder"
	"github.com/ayusman/facewatch/internal/snapshot"
)

// SnapshotRepository archives captured snapshots.
type SnapshotRepository struct {
	db *sql.DB
}

// Snapshots returns the snapshot repository for this store.
func (s *Store) Snapshots() *SnapshotRepository {
	return &SnapshotRepository{db: s.db}
}

// SaveSnapshot inserts a snapshot. It satisfies snapshot.Archive.
func (r *SnapshotRepository) SaveSnapshot(snap snapshot.Snapshot) error {
	_, err := r.db.Exec(
		`INSERT INTO snapshots (id, idx, width, height, format, image, captured_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Index, snap.Width, snap.Height, string(snap.Format), snap.Image, snap.CapturedAt.UTC(),
	)
	return err
}

// Get retrieves a snapshot, image included, by its ID.
func (r *SnapshotRepository) Get(id string) (snapshot.Snapshot, error) {
	var snap snapshot.Snapshot
	var format string

	err := r.db.QueryRow(
		`SELECT id, idx, width, height, format, image, captured_at
		 FROM snapshots WHERE id = ?`,
		id,
	).Scan(&snap.ID, &snap.Index, &snap.Width, &snap.Height, &format, &snap.Image, &snap.CapturedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snapshot.Snapshot{}, ErrNotFound
		}
		return snapshot.Snapshot{}, err
	}

	snap.Format = encoder.Format(format)
	return snap, nil
}

// List retrieves snapshot metadata in capture order, without image bytes.
// A positive limit returns only the most recent snapshots.
func (r *SnapshotRepository) List(limit int) ([]snapshot.Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := r.db.Query(
		`SELECT id, idx, width, height, format, captured_at
		 FROM snapshots ORDER BY captured_at DESC, rowid DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []snapshot.Snapshot
	for rows.Next() {
		var snap snapshot.Snapshot
		var format string
		if err := rows.Scan(&snap.ID, &snap.Index, &snap.Width, &snap.Height, &format, &snap.CapturedAt); err != nil {
			return nil, err
		}
		snap.Format = encoder.Format(format)
		snaps = append(snaps, snap)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(snaps)
	return snaps, nil
}

// Delete removes a snapshot by its ID.
func (r *SnapshotRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM snapshots WHERE id = ?`, id)
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
