package wa

import (
	"time"

	"github.com/mmartins/wamirror/internal/bus"
	"github.com/mmartins/wamirror/internal/status"
	"github.com/mmartins/wamirror/internal/store"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// EventHandler classifies raw whatsmeow events, drives the state machine,
// and publishes normalized domain events on the bus. It never touches the
// store; the ingestion engine subscribes to the bus independently.
type EventHandler struct {
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(b *bus.Bus, machine *status.Machine, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		bus:     b,
		machine: machine,
		logger:  logger,
	}
}

// Handle is the whatsmeow event handler entry point.
func (h *EventHandler) Handle(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		h.logger.Info("WhatsApp connected")
		_ = h.machine.Transition(status.Open)
		h.publish("session.connected", nil)
	case *events.Disconnected:
		h.logger.Warn("WhatsApp disconnected")
		if !h.machine.Terminal() {
			_ = h.machine.Transition(status.Retrying)
		}
		h.publish("session.disconnected", nil)
	case *events.LoggedOut:
		h.logger.Error("WhatsApp logged out", zap.String("reason", evt.Reason.String()))
		_ = h.machine.Transition(status.LoggedOut)
		h.publish("session.logged_out", evt.Reason.String())
	case *events.PairSuccess:
		h.logger.Info("device paired", zap.String("jid", evt.ID.String()))
		h.publish("session.paired", evt.ID.ToNonAD().String())
	case *events.Message:
		h.handleMessage(evt)
	case *events.HistorySync:
		h.handleHistorySync(evt)
	case *events.Contact:
		h.handleContact(evt)
	case *events.PushName:
		if evt.NewPushName == "" {
			return
		}
		name := evt.NewPushName
		h.publish("wa.contact", &store.ChatPatch{
			JID:  evt.JID.ToNonAD().String(),
			Name: &name,
		})
	case *events.GroupInfo:
		if evt.Name == nil || evt.Name.Name == "" {
			return
		}
		name := evt.Name.Name
		h.publish("wa.chat", &store.ChatPatch{
			JID:  evt.JID.ToNonAD().String(),
			Name: &name,
		})
	}
}

func (h *EventHandler) handleMessage(evt *events.Message) {
	msg := NormalizeLive(evt)
	if msg == nil {
		h.logger.Debug("skipping non-renderable message",
			zap.String("msg_id", evt.Info.ID),
			zap.String("chat_jid", evt.Info.Chat.String()))
		return
	}
	h.publish("wa.message", msg)
}

func (h *EventHandler) handleContact(evt *events.Contact) {
	name := evt.Action.GetFullName()
	if name == "" {
		name = evt.Action.GetFirstName()
	}
	if name == "" {
		return
	}
	h.publish("wa.contact", &store.ChatPatch{
		JID:  evt.JID.ToNonAD().String(),
		Name: &name,
	})
}

// handleHistorySync flattens one history payload into a single batch so the
// engine can apply it transactionally: push names and conversation metadata
// first, then messages.
func (h *EventHandler) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	batch := &store.HistoryBatch{}

	for _, pn := range data.GetPushnames() {
		if pn.GetID() == "" || pn.GetPushname() == "" {
			continue
		}
		name := pn.GetPushname()
		batch.Contacts = append(batch.Contacts, store.ChatPatch{
			JID:  normalizeJID(pn.GetID()),
			Name: &name,
		})
	}

	for _, conv := range data.GetConversations() {
		chatJID := normalizeJID(conv.GetID())
		if chatJID == "" {
			continue
		}
		batch.Chats = append(batch.Chats, conversationPatch(chatJID, conv))
		for _, hm := range conv.GetMessages() {
			if msg := NormalizeHistory(chatJID, hm.GetMessage()); msg != nil {
				batch.Messages = append(batch.Messages, msg)
			}
		}
	}

	if len(batch.Contacts) == 0 && len(batch.Chats) == 0 && len(batch.Messages) == 0 {
		return
	}
	h.logger.Debug("history sync received",
		zap.String("type", data.GetSyncType().String()),
		zap.Int("contacts", len(batch.Contacts)),
		zap.Int("chats", len(batch.Chats)),
		zap.Int("messages", len(batch.Messages)))
	h.publish("wa.history", batch)
}

func conversationPatch(chatJID string, conv *waHistorySync.Conversation) store.ChatPatch {
	p := store.ChatPatch{JID: chatJID}
	if name := conv.GetName(); name != "" {
		p.Name = &name
	}
	if sec := conv.GetConversationTimestamp(); sec > 0 {
		t := time.Unix(int64(sec), 0).UTC()
		p.LastMessageTime = &t
	}
	return p
}

func (h *EventHandler) publish(kind string, payload any) {
	h.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
