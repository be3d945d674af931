package wa

import (
	"strings"
	"time"

	"github.com/mmartins/wamirror/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// NormalizeLive converts a live message event into a store record. Returns
// nil when the payload carries nothing renderable (reactions, receipts,
// protocol messages), which the caller drops.
func NormalizeLive(evt *events.Message) *store.Message {
	content := extractContent(evt.Message)
	if content == "" {
		return nil
	}

	chatJID := evt.Info.Chat.ToNonAD().String()
	ts := evt.Info.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &store.Message{
		ID:        evt.Info.ID,
		ChatJID:   chatJID,
		Sender:    resolveSender(chatJID, evt.Info.Sender.ToNonAD().String(), evt.Info.IsFromMe),
		Content:   content,
		Timestamp: ts.UTC(),
		IsFromMe:  evt.Info.IsFromMe,
	}
}

// NormalizeHistory converts one history sync message belonging to chatJID.
// Returns nil for non-renderable payloads.
func NormalizeHistory(chatJID string, wmsg *waWeb.WebMessageInfo) *store.Message {
	if wmsg == nil {
		return nil
	}
	content := extractContent(wmsg.GetMessage())
	if content == "" {
		return nil
	}

	key := wmsg.GetKey()
	ts := time.Now()
	if sec := wmsg.GetMessageTimestamp(); sec > 0 {
		ts = time.Unix(int64(sec), 0)
	}

	return &store.Message{
		ID:        key.GetID(),
		ChatJID:   chatJID,
		Sender:    resolveSender(chatJID, normalizeJID(key.GetParticipant()), key.GetFromMe()),
		Content:   content,
		Timestamp: ts.UTC(),
		IsFromMe:  key.GetFromMe(),
	}
}

// resolveSender applies the sender convention: in groups the participant, in
// direct chats the chat JID for received messages and nothing for own ones.
func resolveSender(chatJID, participant string, fromMe bool) *string {
	if isGroupJID(chatJID) {
		if participant == "" {
			return nil
		}
		return &participant
	}
	if fromMe {
		return nil
	}
	if participant != "" {
		return &participant
	}
	return &chatJID
}

func isGroupJID(jid string) bool {
	return strings.HasSuffix(jid, "@"+types.GroupServer)
}

func normalizeJID(raw string) string {
	if raw == "" {
		return ""
	}
	jid, err := types.ParseJID(raw)
	if err != nil {
		return raw
	}
	return jid.ToNonAD().String()
}

// extractContent renders a message payload as text. Text messages pass
// through; media and structured payloads collapse to a bracketed marker plus
// whatever caption or label they carry. Empty means not renderable.
func extractContent(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil && ext.GetText() != "" {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return labeled("[Image]", img.GetCaption())
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return labeled("[Video]", vid.GetCaption())
	}
	if doc := msg.GetDocumentMessage(); doc != nil {
		if c := doc.GetCaption(); c != "" {
			return labeled("[Document]", c)
		}
		return labeled("[Document]", doc.GetFileName())
	}
	if msg.GetAudioMessage() != nil {
		return "[Audio]"
	}
	if msg.GetStickerMessage() != nil {
		return "[Sticker]"
	}
	if loc := msg.GetLocationMessage(); loc != nil {
		return labeled("[Location]", loc.GetAddress())
	}
	if ct := msg.GetContactMessage(); ct != nil {
		return labeled("[Contact]", ct.GetDisplayName())
	}
	if poll := msg.GetPollCreationMessage(); poll != nil {
		return labeled("[Poll]", poll.GetName())
	}
	return ""
}

func labeled(marker, text string) string {
	if text == "" {
		return marker
	}
	return marker + " " + text
}
