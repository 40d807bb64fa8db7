package store

// UpsertNotification inserts or updates a notification (idempotent on id).
func (db *DB) UpsertNotification(n *Notification) error {
	_, err := db.Exec(`
		INSERT INTO notifications (id, receiver_id, sender_id, content, kind, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			is_read = excluded.is_read`,
		n.ID, n.ReceiverID, n.SenderID, n.Content, n.Kind, n.IsRead, n.CreatedAt)
	return err
}

// DeleteNotification removes a notification from the cache.
func (db *DB) DeleteNotification(id string) error {
	_, err := db.Exec(`DELETE FROM notifications WHERE id = ?`, id)
	return err
}

// ListNotifications returns a receiver's notifications, newest first.
// With unreadOnly, read ones are filtered out.
func (db *DB) ListNotifications(receiverID string, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `
		SELECT id, receiver_id, sender_id, content, kind, is_read, created_at
		FROM notifications
		WHERE receiver_id = ?`
	if unreadOnly {
		q += ` AND is_read = 0`
	}
	q += ` ORDER BY created_at DESC LIMIT ?`

	rows, err := db.Query(q, receiverID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.ReceiverID, &n.SenderID, &n.Content, &n.Kind, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountUnreadNotifications returns the badge count for a receiver.
func (db *DB) CountUnreadNotifications(receiverID string) (int, error) {
	var n int
	err := db.QueryRow(`
		SELECT COUNT(*) FROM notifications
		WHERE receiver_id = ? AND is_read = 0`, receiverID).Scan(&n)
	return n, err
}
