package store

// UpsertChat inserts or merges a partial chat record. This is the single
// entry point that creates chats: whichever writer references a JID first
// (contact sync, history sync, or a live message) materializes the row.
//
// Merge policy on conflict: each field takes the incoming value if non-null
// and keeps the stored one otherwise, except last_message_time which only
// advances: max(stored, incoming), with a null side losing to the other.
// The max-merge makes chat writes commutative and idempotent, so out-of-order
// delivery cannot regress the timestamp.
func (db *DB) UpsertChat(p *ChatPatch) error {
	_, err := db.Exec(`
		INSERT INTO chats (jid, name, last_message_time)
		VALUES (?, ?, ?)
		ON CONFLICT(jid) DO UPDATE SET
			name = COALESCE(excluded.name, chats.name),
			last_message_time = CASE
				WHEN excluded.last_message_time IS NULL THEN chats.last_message_time
				WHEN chats.last_message_time IS NULL THEN excluded.last_message_time
				ELSE MAX(chats.last_message_time, excluded.last_message_time)
			END`,
		p.JID, p.Name, millis(p.LastMessageTime))
	return err
}

// DeleteChat removes a chat and, via the cascade constraint, all of its
// messages. The sync pipeline never deletes; this exists for administrative
// cleanup only.
func (db *DB) DeleteChat(jid string) error {
	_, err := db.Exec(`DELETE FROM chats WHERE jid = ?`, jid)
	return err
}

// ChatCount returns the total number of chats.
func (db *DB) ChatCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM chats`).Scan(&count)
	return count, err
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
