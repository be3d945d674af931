package ingest

import (
	"fmt"

	"github.com/mmartins/wamirror/internal/store"
	"go.uber.org/zap"
)

// Reconciler applies normalized WhatsApp records to the mirror database.
// Every write path is idempotent, so replaying history or receiving the
// same live event twice converges on the same snapshot.
type Reconciler struct {
	db     *store.DB
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(db *store.DB, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, logger: logger}
}

// ApplyChatPatch merges a partial chat record (contact sync, push name
// update, group rename) into the store.
func (r *Reconciler) ApplyChatPatch(p *store.ChatPatch) error {
	if err := r.db.UpsertChat(p); err != nil {
		return fmt.Errorf("upsert chat %s: %w", p.JID, err)
	}
	return nil
}

// ApplyMessage stores one message. The owning chat is touched first with the
// message's timestamp so the row exists for the foreign key and its
// last_message_time advances; the two writes are independent statements, so
// a duplicate message still refreshes the chat.
func (r *Reconciler) ApplyMessage(m *store.Message) error {
	ts := m.Timestamp
	if err := r.db.UpsertChat(&store.ChatPatch{JID: m.ChatJID, LastMessageTime: &ts}); err != nil {
		return fmt.Errorf("touch chat %s: %w", m.ChatJID, err)
	}
	if err := r.db.UpsertMessage(m); err != nil {
		return fmt.Errorf("upsert message %s/%s: %w", m.ChatJID, m.ID, err)
	}
	return nil
}

// ApplyHistoryBatch applies one history sync payload record by record:
// contacts first, then conversations, then messages, so every message lands
// in an already-materialized chat. Each record is an independent write; a
// failing record is logged and skipped, the rest of the batch still lands.
// Returns the number of chat and message records applied.
func (r *Reconciler) ApplyHistoryBatch(batch *store.HistoryBatch) (chats, messages int) {
	for _, c := range batch.Contacts {
		if err := r.db.UpsertChat(&c); err != nil {
			r.logger.Warn("skipping contact record", zap.Error(err), zap.String("jid", c.JID))
			continue
		}
		chats++
	}
	for _, c := range batch.Chats {
		if err := r.db.UpsertChat(&c); err != nil {
			r.logger.Warn("skipping chat record", zap.Error(err), zap.String("jid", c.JID))
			continue
		}
		chats++
	}
	for _, m := range batch.Messages {
		if err := r.ApplyMessage(m); err != nil {
			r.logger.Warn("skipping message record",
				zap.Error(err),
				zap.String("chat_jid", m.ChatJID),
				zap.String("msg_id", m.ID))
			continue
		}
		messages++
	}
	return chats, messages
}
