package store

import "time"

// Chat is a mirrored conversation. Name and LastMessageTime may arrive later
// than the chat itself; the LastMessage* fields are derived at read time from
// the most recent message and are only populated when requested.
type Chat struct {
	JID             string
	Name            *string
	LastMessageTime *time.Time
	LastMessage     *string
	LastSender      *string
	LastIsFromMe    *bool
}

// ChatPatch is a partial chat write. Nil fields keep the stored value;
// LastMessageTime only ever advances (max-merge), never regresses.
type ChatPatch struct {
	JID             string
	Name            *string
	LastMessageTime *time.Time
}

// Message is a mirrored message. IDs are unique only within a chat, so the
// identity is the (ID, ChatJID) pair. Sender is nil for self-sent direct
// messages; the IsFromMe flag alone identifies authorship there. ChatName is
// joined in on reads.
type Message struct {
	ID        string
	ChatJID   string
	Sender    *string
	Content   string
	Timestamp time.Time
	IsFromMe  bool
	ChatName  *string
}

// Contact is a non-group chat entry matched by a contact search.
type Contact struct {
	JID  string
	Name *string
}

// MessageContext is a window of messages around a target, both sides in
// chronological order. All fields are empty when the target is unknown.
type MessageContext struct {
	Before []Message
	Target *Message
	After  []Message
}

// HistoryBatch groups one bulk history sync payload. The ingestion engine
// applies it record by record in order: contacts, then chats, then messages,
// so display names are in place before the chats and messages that reference
// them. Every record is an independent idempotent write.
type HistoryBatch struct {
	Contacts []ChatPatch
	Chats    []ChatPatch
	Messages []*Message
}
