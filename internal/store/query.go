package store

import (
	"database/sql"
	"fmt"
)

// ChatSort selects the ordering for ListChats.
type ChatSort string

const (
	// SortRecency orders by last message time descending, chats that never
	// saw a message last, ties broken by JID ascending.
	SortRecency ChatSort = "recency"
	// SortName orders by display name ascending, same tie-break.
	SortName ChatSort = "name"
)

// lastMessageColumns are the correlated subqueries deriving the most recent
// message's content/sender/direction for a chat. They triple the per-row
// cost, so callers toggle them explicitly.
const lastMessageColumns = `,
		(SELECT m.content FROM messages m WHERE m.chat_jid = c.jid ORDER BY m.timestamp DESC LIMIT 1) AS last_message,
		(SELECT m.sender FROM messages m WHERE m.chat_jid = c.jid ORDER BY m.timestamp DESC LIMIT 1) AS last_sender,
		(SELECT m.is_from_me FROM messages m WHERE m.chat_jid = c.jid ORDER BY m.timestamp DESC LIMIT 1) AS last_is_from_me`

// ListMessages returns a chat's messages in reverse-chronological order with
// offset pagination, joined with the chat display name. Unknown chats yield
// an empty slice.
func (db *DB) ListMessages(chatJID string, limit, page int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	if page < 0 {
		page = 0
	}
	rows, err := db.Query(`
		SELECT m.id, m.chat_jid, m.sender, m.content, m.timestamp, m.is_from_me, c.name
		FROM messages m
		JOIN chats c ON m.chat_jid = c.jid
		WHERE m.chat_jid = ?
		ORDER BY m.timestamp DESC
		LIMIT ? OFFSET ?`, chatJID, limit, page*limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// ListChats returns chats sorted and filtered per the arguments. query
// filters case-insensitively by substring against name or JID.
func (db *DB) ListChats(limit, page int, sortBy ChatSort, query string, includeLastMessage bool) ([]Chat, error) {
	if limit <= 0 {
		limit = 20
	}
	if page < 0 {
		page = 0
	}

	sqlStr := `SELECT c.jid, c.name, c.last_message_time`
	if includeLastMessage {
		sqlStr += lastMessageColumns
	}
	sqlStr += ` FROM chats c`

	var args []any
	if query != "" {
		sqlStr += ` WHERE (LOWER(c.name) LIKE LOWER(?) OR c.jid LIKE ?)`
		pattern := "%" + query + "%"
		args = append(args, pattern, pattern)
	}

	switch sortBy {
	case SortName:
		sqlStr += ` ORDER BY c.name ASC, c.jid ASC`
	default:
		sqlStr += ` ORDER BY c.last_message_time DESC NULLS LAST, c.jid ASC`
	}

	sqlStr += ` LIMIT ? OFFSET ?`
	args = append(args, limit, page*limit)

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		c, err := scanChat(rows, includeLastMessage)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat by JID, or nil when absent.
func (db *DB) GetChat(jid string, includeLastMessage bool) (*Chat, error) {
	sqlStr := `SELECT c.jid, c.name, c.last_message_time`
	if includeLastMessage {
		sqlStr += lastMessageColumns
	}
	sqlStr += ` FROM chats c WHERE c.jid = ?`

	rows, err := db.Query(sqlStr, jid)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanChat(rows, includeLastMessage)
}

// MessagesAround locates a message by id and returns up to beforeN preceding
// and afterN following messages in the same chat, ordered by timestamp, plus
// the target. An unknown id yields an empty context, not an error.
func (db *DB) MessagesAround(messageID string, beforeN, afterN int) (*MessageContext, error) {
	if beforeN < 0 {
		beforeN = 0
	}
	if afterN < 0 {
		afterN = 0
	}
	ctx := &MessageContext{Before: []Message{}, After: []Message{}}

	rows, err := db.Query(`
		SELECT m.id, m.chat_jid, m.sender, m.content, m.timestamp, m.is_from_me, c.name
		FROM messages m
		JOIN chats c ON m.chat_jid = c.jid
		WHERE m.id = ?`, messageID)
	if err != nil {
		return nil, err
	}
	target, err := scanFirstMessage(rows)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return ctx, nil
	}
	ctx.Target = target
	ts := target.Timestamp.UnixMilli()

	before, err := db.queryWindow(target.ChatJID, ts, "<", "DESC", beforeN)
	if err != nil {
		return nil, err
	}
	// Flip to chronological order.
	for i, j := 0, len(before)-1; i < j; i, j = i+1, j-1 {
		before[i], before[j] = before[j], before[i]
	}
	ctx.Before = before

	after, err := db.queryWindow(target.ChatJID, ts, ">", "ASC", afterN)
	if err != nil {
		return nil, err
	}
	ctx.After = after

	return ctx, nil
}

func (db *DB) queryWindow(chatJID string, ts int64, cmp, order string, limit int) ([]Message, error) {
	rows, err := db.Query(fmt.Sprintf(`
		SELECT m.id, m.chat_jid, m.sender, m.content, m.timestamp, m.is_from_me, c.name
		FROM messages m
		JOIN chats c ON m.chat_jid = c.jid
		WHERE m.chat_jid = ? AND m.timestamp %s ?
		ORDER BY m.timestamp %s
		LIMIT ?`, cmp, order), chatJID, ts, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

// SearchContacts matches non-group chats case-insensitively by substring on
// name or JID, deduplicated, name-then-JID ascending.
func (db *DB) SearchContacts(query string, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	rows, err := db.Query(`
		SELECT DISTINCT jid, name
		FROM chats
		WHERE (LOWER(name) LIKE LOWER(?) OR jid LIKE ?)
		  AND jid NOT LIKE '%@g.us'
		ORDER BY name ASC, jid ASC
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		var name sql.NullString
		if err := rows.Scan(&c.JID, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			c.Name = &name.String
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// SearchMessages matches message content case-insensitively by substring,
// optionally restricted to one chat, reverse-chronological with offset
// pagination.
func (db *DB) SearchMessages(query, chatJID string, limit, page int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	if page < 0 {
		page = 0
	}

	sqlStr := `
		SELECT m.id, m.chat_jid, m.sender, m.content, m.timestamp, m.is_from_me, c.name
		FROM messages m
		JOIN chats c ON m.chat_jid = c.jid
		WHERE LOWER(m.content) LIKE LOWER(?)`
	args := []any{"%" + query + "%"}

	if chatJID != "" {
		sqlStr += ` AND m.chat_jid = ?`
		args = append(args, chatJID)
	}
	sqlStr += ` ORDER BY m.timestamp DESC LIMIT ? OFFSET ?`
	args = append(args, limit, page*limit)

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func scanFirstMessage(rows *sql.Rows) (*Message, error) {
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanMessage(rows)
}

func scanMessage(rows *sql.Rows) (*Message, error) {
	var m Message
	var sender, chatName sql.NullString
	var ts int64
	if err := rows.Scan(&m.ID, &m.ChatJID, &sender, &m.Content, &ts, &m.IsFromMe, &chatName); err != nil {
		return nil, err
	}
	if sender.Valid {
		m.Sender = &sender.String
	}
	if chatName.Valid {
		m.ChatName = &chatName.String
	}
	m.Timestamp = timeFromMillis(ts)
	return &m, nil
}

func scanChat(rows *sql.Rows, includeLastMessage bool) (*Chat, error) {
	var c Chat
	var name sql.NullString
	var lmt sql.NullInt64

	dest := []any{&c.JID, &name, &lmt}
	var lastMessage, lastSender sql.NullString
	var lastIsFromMe sql.NullBool
	if includeLastMessage {
		dest = append(dest, &lastMessage, &lastSender, &lastIsFromMe)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}

	if name.Valid {
		c.Name = &name.String
	}
	if lmt.Valid {
		t := timeFromMillis(lmt.Int64)
		c.LastMessageTime = &t
	}
	if lastMessage.Valid {
		c.LastMessage = &lastMessage.String
	}
	if lastSender.Valid {
		c.LastSender = &lastSender.String
	}
	if lastIsFromMe.Valid {
		c.LastIsFromMe = &lastIsFromMe.Bool
	}
	return &c, nil
}
