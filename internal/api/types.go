package api

import (
	"time"

	"github.com/mmartins/wamirror/internal/store"
)

type chatJSON struct {
	JID             string     `json:"jid"`
	Name            *string    `json:"name"`
	LastMessageTime *time.Time `json:"last_message_time"`
	LastMessage     *string    `json:"last_message,omitempty"`
	LastSender      *string    `json:"last_sender,omitempty"`
	LastIsFromMe    *bool      `json:"last_is_from_me,omitempty"`
}

type messageJSON struct {
	ID        string    `json:"id"`
	ChatJID   string    `json:"chat_jid"`
	ChatName  *string   `json:"chat_name,omitempty"`
	Sender    *string   `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsFromMe  bool      `json:"is_from_me"`
}

type contactJSON struct {
	JID  string  `json:"jid"`
	Name *string `json:"name"`
}

type contextJSON struct {
	Target *messageJSON  `json:"target"`
	Before []messageJSON `json:"before"`
	After  []messageJSON `json:"after"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func toChatJSON(c *store.Chat) chatJSON {
	return chatJSON{
		JID:             c.JID,
		Name:            c.Name,
		LastMessageTime: c.LastMessageTime,
		LastMessage:     c.LastMessage,
		LastSender:      c.LastSender,
		LastIsFromMe:    c.LastIsFromMe,
	}
}

func toMessageJSON(m *store.Message) messageJSON {
	return messageJSON{
		ID:        m.ID,
		ChatJID:   m.ChatJID,
		ChatName:  m.ChatName,
		Sender:    m.Sender,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		IsFromMe:  m.IsFromMe,
	}
}

func toMessagesJSON(msgs []store.Message) []messageJSON {
	out := make([]messageJSON, len(msgs))
	for i := range msgs {
		out[i] = toMessageJSON(&msgs[i])
	}
	return out
}

func toContactsJSON(contacts []store.Contact) []contactJSON {
	out := make([]contactJSON, len(contacts))
	for i, c := range contacts {
		out[i] = contactJSON{JID: c.JID, Name: c.Name}
	}
	return out
}
