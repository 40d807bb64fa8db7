package store

import (
	"database/sql"
	"time"
)

// UpsertReadStatus inserts or updates a read marker.
func (db *DB) UpsertReadStatus(rs *ReadStatus) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO read_statuses (id, user_id, other_id, last_read, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_read = excluded.last_read,
			updated_at = excluded.updated_at`,
		rs.ID, rs.UserID, rs.OtherID, rs.LastRead, now)
	return err
}

// GetReadStatus returns the read marker for one conversation direction.
func (db *DB) GetReadStatus(id string) (*ReadStatus, error) {
	var rs ReadStatus
	err := db.QueryRow(`
		SELECT id, user_id, other_id, last_read
		FROM read_statuses WHERE id = ?`, id).
		Scan(&rs.ID, &rs.UserID, &rs.OtherID, &rs.LastRead)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rs, nil
}
