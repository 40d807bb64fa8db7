package store

import (
	"database/sql"
	"time"
)

// UpsertConversation inserts or updates a conversation summary.
func (db *DB) UpsertConversation(c *Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (other_id, display_name, avatar, last_msg_id, last_sender_id, last_content, last_image, last_created_at, unread_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(other_id) DO UPDATE SET
			display_name = excluded.display_name,
			avatar = excluded.avatar,
			last_msg_id = excluded.last_msg_id,
			last_sender_id = excluded.last_sender_id,
			last_content = excluded.last_content,
			last_image = excluded.last_image,
			last_created_at = excluded.last_created_at,
			unread_count = excluded.unread_count,
			updated_at = excluded.updated_at`,
		c.OtherID, c.DisplayName, c.Avatar, c.LastMsgID, c.LastSenderID, c.LastContent, c.LastImage, c.LastCreatedAt, c.UnreadCount, now)
	return err
}

// ListConversations returns conversations sorted by last message timestamp
// descending, falling back to the partner id when no name is known.
func (db *DB) ListConversations(limit, offset int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT other_id,
			COALESCE(NULLIF(display_name,''), other_id) AS display_name,
			avatar, last_msg_id, last_sender_id, last_content, last_image, last_created_at, unread_count
		FROM conversations
		ORDER BY last_created_at DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.OtherID, &c.DisplayName, &c.Avatar, &c.LastMsgID, &c.LastSenderID, &c.LastContent, &c.LastImage, &c.LastCreatedAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// GetConversation returns a single conversation by partner id.
func (db *DB) GetConversation(otherID string) (*Conversation, error) {
	var c Conversation
	err := db.QueryRow(`
		SELECT other_id,
			COALESCE(NULLIF(display_name,''), other_id) AS display_name,
			avatar, last_msg_id, last_sender_id, last_content, last_image, last_created_at, unread_count
		FROM conversations
		WHERE other_id = ?`, otherID).
		Scan(&c.OtherID, &c.DisplayName, &c.Avatar, &c.LastMsgID, &c.LastSenderID, &c.LastContent, &c.LastImage, &c.LastCreatedAt, &c.UnreadCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ReplaceConversations swaps the whole cached summary set in one transaction.
// Used after every recompute so the cache never mixes two snapshots.
func (db *DB) ReplaceConversations(convs []Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for _, c := range convs {
		if _, err := tx.Exec(`
			INSERT INTO conversations (other_id, display_name, avatar, last_msg_id, last_sender_id, last_content, last_image, last_created_at, unread_count, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.OtherID, c.DisplayName, c.Avatar, c.LastMsgID, c.LastSenderID, c.LastContent, c.LastImage, c.LastCreatedAt, c.UnreadCount, now); err != nil {
			return err
		}
	}
	return tx.Commit()
}
