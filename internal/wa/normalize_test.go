package wa

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func TestExtractContent(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hi")}, "hi"},
		{"extended text", &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked")},
		}, "linked"},
		{"image no caption", &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{},
		}, "[Image]"},
		{"image with caption", &waE2E.Message{
			ImageMessage: &waE2E.ImageMessage{Caption: proto.String("sunset")},
		}, "[Image] sunset"},
		{"video with caption", &waE2E.Message{
			VideoMessage: &waE2E.VideoMessage{Caption: proto.String("clip")},
		}, "[Video] clip"},
		{"document caption beats filename", &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{
				Caption:  proto.String("q3 report"),
				FileName: proto.String("report.pdf"),
			},
		}, "[Document] q3 report"},
		{"document filename fallback", &waE2E.Message{
			DocumentMessage: &waE2E.DocumentMessage{FileName: proto.String("report.pdf")},
		}, "[Document] report.pdf"},
		{"audio", &waE2E.Message{
			AudioMessage: &waE2E.AudioMessage{},
		}, "[Audio]"},
		{"sticker", &waE2E.Message{
			StickerMessage: &waE2E.StickerMessage{},
		}, "[Sticker]"},
		{"location with address", &waE2E.Message{
			LocationMessage: &waE2E.LocationMessage{Address: proto.String("1 Main St")},
		}, "[Location] 1 Main St"},
		{"contact card", &waE2E.Message{
			ContactMessage: &waE2E.ContactMessage{DisplayName: proto.String("Bob")},
		}, "[Contact] Bob"},
		{"poll", &waE2E.Message{
			PollCreationMessage: &waE2E.PollCreationMessage{Name: proto.String("lunch?")},
		}, "[Poll] lunch?"},
		{"reaction is not renderable", &waE2E.Message{
			ReactionMessage: &waE2E.ReactionMessage{Text: proto.String("x")},
		}, ""},
		{"conversation beats image", &waE2E.Message{
			Conversation: proto.String("plain wins"),
			ImageMessage: &waE2E.ImageMessage{Caption: proto.String("sunset")},
		}, "plain wins"},
		{"extended text beats image", &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("linked wins")},
			ImageMessage:        &waE2E.ImageMessage{Caption: proto.String("sunset")},
		}, "linked wins"},
		{"image beats document", &waE2E.Message{
			ImageMessage:    &waE2E.ImageMessage{},
			DocumentMessage: &waE2E.DocumentMessage{FileName: proto.String("report.pdf")},
		}, "[Image]"},
		{"empty extended text falls through to image", &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("")},
			ImageMessage:        &waE2E.ImageMessage{Caption: proto.String("sunset")},
		}, "[Image] sunset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractContent(tt.msg); got != tt.want {
				t.Errorf("extractContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveSender(t *testing.T) {
	group := "123-456@g.us"
	direct := "111@s.whatsapp.net"
	participant := "222@s.whatsapp.net"

	tests := []struct {
		name        string
		chatJID     string
		participant string
		fromMe      bool
		want        *string
	}{
		{"group received", group, participant, false, &participant},
		{"group from me", group, participant, true, &participant},
		{"group missing participant", group, "", false, nil},
		{"direct from me", direct, "", true, nil},
		{"direct received no participant", direct, "", false, &direct},
		{"direct received with participant", direct, participant, false, &participant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveSender(tt.chatJID, tt.participant, tt.fromMe)
			switch {
			case got == nil && tt.want != nil:
				t.Errorf("sender = nil, want %q", *tt.want)
			case got != nil && tt.want == nil:
				t.Errorf("sender = %q, want nil", *got)
			case got != nil && tt.want != nil && *got != *tt.want:
				t.Errorf("sender = %q, want %q", *got, *tt.want)
			}
		})
	}
}

func TestNormalizeLive(t *testing.T) {
	chat := types.NewJID("111", types.DefaultUserServer)
	evt := &events.Message{
		Info: types.MessageInfo{
			ID:        "3EB0",
			Timestamp: time.Unix(1700000000, 0),
			MessageSource: types.MessageSource{
				Chat:     chat,
				Sender:   chat,
				IsFromMe: false,
			},
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	}

	msg := NormalizeLive(evt)
	if msg == nil {
		t.Fatal("got nil for renderable message")
	}
	if msg.ID != "3EB0" || msg.ChatJID != "111@s.whatsapp.net" {
		t.Errorf("identity = (%s, %s)", msg.ID, msg.ChatJID)
	}
	if msg.Content != "hello" {
		t.Errorf("content = %q", msg.Content)
	}
	if msg.Sender == nil || *msg.Sender != "111@s.whatsapp.net" {
		t.Errorf("sender = %v, want chat jid for direct received", msg.Sender)
	}
	if !msg.Timestamp.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("timestamp = %v", msg.Timestamp)
	}
}

func TestNormalizeLiveDropsProtocolMessages(t *testing.T) {
	evt := &events.Message{
		Info: types.MessageInfo{
			ID: "x",
			MessageSource: types.MessageSource{
				Chat: types.NewJID("111", types.DefaultUserServer),
			},
		},
		Message: &waE2E.Message{
			ProtocolMessage: &waE2E.ProtocolMessage{},
		},
	}
	if msg := NormalizeLive(evt); msg != nil {
		t.Errorf("got %+v, want nil", msg)
	}
}

func TestNormalizeHistory(t *testing.T) {
	wmsg := &waWeb.WebMessageInfo{
		Key: &waCommon.MessageKey{
			ID:          proto.String("hist1"),
			FromMe:      proto.Bool(false),
			Participant: proto.String("222@s.whatsapp.net"),
		},
		Message:          &waE2E.Message{Conversation: proto.String("old news")},
		MessageTimestamp: proto.Uint64(1600000000),
	}

	msg := NormalizeHistory("123-456@g.us", wmsg)
	if msg == nil {
		t.Fatal("got nil")
	}
	if msg.ID != "hist1" || msg.ChatJID != "123-456@g.us" {
		t.Errorf("identity = (%s, %s)", msg.ID, msg.ChatJID)
	}
	if msg.Sender == nil || *msg.Sender != "222@s.whatsapp.net" {
		t.Errorf("sender = %v, want group participant", msg.Sender)
	}
	if !msg.Timestamp.Equal(time.Unix(1600000000, 0)) {
		t.Errorf("timestamp = %v, want epoch seconds converted", msg.Timestamp)
	}
}

func TestNormalizeHistoryTimestampFallback(t *testing.T) {
	wmsg := &waWeb.WebMessageInfo{
		Key:     &waCommon.MessageKey{ID: proto.String("h2"), FromMe: proto.Bool(true)},
		Message: &waE2E.Message{Conversation: proto.String("x")},
	}

	before := time.Now().Add(-time.Second)
	msg := NormalizeHistory("111@s.whatsapp.net", wmsg)
	if msg == nil {
		t.Fatal("got nil")
	}
	if msg.Timestamp.Before(before) {
		t.Errorf("timestamp = %v, want current time fallback for missing timestamp", msg.Timestamp)
	}
	if msg.Sender != nil {
		t.Errorf("sender = %v, want nil for own direct message", *msg.Sender)
	}
}
