package store

// UpsertMessage stores a message, replacing any existing row with the same
// (id, chat_jid) key entirely: the last writer wins, no field-level merge.
// Re-observing an id (edit, re-sync) therefore converges on the newest
// rendering. The owning chat must already exist (see Reconciler, which
// touches the chat first so the foreign key holds).
func (db *DB) UpsertMessage(m *Message) error {
	var sender any
	if m.Sender != nil {
		sender = *m.Sender
	}
	_, err := db.Exec(`
		INSERT OR REPLACE INTO messages (id, chat_jid, sender, content, timestamp, is_from_me)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.ChatJID, sender, m.Content, m.Timestamp.UnixMilli(), m.IsFromMe)
	return err
}
