package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mmartins/wamirror/internal/bus"
	"github.com/mmartins/wamirror/internal/status"
	"github.com/mmartins/wamirror/internal/store"
	"github.com/mmartins/wamirror/internal/wa"
	"go.uber.org/zap"
)

type stubSender struct {
	err    error
	lastTo string
}

func (s *stubSender) SendText(_ context.Context, jid, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.lastTo = jid
	return "SRV123", nil
}

func (s *stubSender) PhoneNumber() string { return "5511999999999" }
func (s *stubSender) IsConnected() bool   { return true }

func testServer(t *testing.T, sender Sender) (*Server, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if sender == nil {
		sender = &stubSender{}
	}
	machine := status.NewMachine(bus.New())
	return NewServer("127.0.0.1:0", db, machine, sender, zap.NewNop()), db
}

func doJSON(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var parsed map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &parsed); err != nil {
			t.Fatalf("invalid JSON response: %v\n%s", err, w.Body.String())
		}
	}
	return w, parsed
}

func seed(t *testing.T, db *store.DB) {
	t.Helper()
	name := "Alice"
	lmt := time.Unix(2000, 0).UTC()
	if err := db.UpsertChat(&store.ChatPatch{JID: "111@s.whatsapp.net", Name: &name, LastMessageTime: &lmt}); err != nil {
		t.Fatal(err)
	}
	for i, content := range []string{"hello world", "goodbye"} {
		if err := db.UpsertMessage(&store.Message{
			ID:        []string{"m1", "m2"}[i],
			ChatJID:   "111@s.whatsapp.net",
			Content:   content,
			Timestamp: time.Unix(int64(1000*(i+1)), 0).UTC(),
		}); err != nil {
			t.Fatal(err)
		}
	}
}

func TestGetStatus(t *testing.T) {
	s, db := testServer(t, nil)
	seed(t, db)

	w, body := doJSON(t, s, http.MethodGet, "/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body["state"] != string(status.Disconnected) {
		t.Errorf("state = %v", body["state"])
	}
	if body["chats"].(float64) != 1 || body["messages"].(float64) != 2 {
		t.Errorf("counts = %v chats, %v messages", body["chats"], body["messages"])
	}
	if body["phone"] != "5511999999999" {
		t.Errorf("phone = %v", body["phone"])
	}
}

func TestListChats(t *testing.T) {
	s, db := testServer(t, nil)
	seed(t, db)

	w, body := doJSON(t, s, http.MethodGet, "/v1/chats?include_last_message=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	chats := body["chats"].([]any)
	if len(chats) != 1 {
		t.Fatalf("got %d chats", len(chats))
	}
	chat := chats[0].(map[string]any)
	if chat["jid"] != "111@s.whatsapp.net" || chat["name"] != "Alice" {
		t.Errorf("chat = %v", chat)
	}
	if chat["last_message"] != "goodbye" {
		t.Errorf("last_message = %v", chat["last_message"])
	}
}

func TestListChatsRejectsBadSort(t *testing.T) {
	s, _ := testServer(t, nil)

	w, _ := doJSON(t, s, http.MethodGet, "/v1/chats?sort=bogus", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetChatNotFound(t *testing.T) {
	s, _ := testServer(t, nil)

	w, _ := doJSON(t, s, http.MethodGet, "/v1/chats/nobody@s.whatsapp.net", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListMessages(t *testing.T) {
	s, db := testServer(t, nil)
	seed(t, db)

	w, body := doJSON(t, s, http.MethodGet, "/v1/chats/111@s.whatsapp.net/messages", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	first := msgs[0].(map[string]any)
	if first["id"] != "m2" {
		t.Errorf("first message = %v, want m2 (newest first)", first["id"])
	}
}

func TestMessageContext(t *testing.T) {
	s, db := testServer(t, nil)
	seed(t, db)

	w, body := doJSON(t, s, http.MethodGet, "/v1/messages/m2/context?before=5&after=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	target := body["target"].(map[string]any)
	if target["id"] != "m2" {
		t.Errorf("target = %v", target["id"])
	}
	before := body["before"].([]any)
	if len(before) != 1 || before[0].(map[string]any)["id"] != "m1" {
		t.Errorf("before = %v", before)
	}
}

func TestMessageContextUnknownID(t *testing.T) {
	s, _ := testServer(t, nil)

	w, _ := doJSON(t, s, http.MethodGet, "/v1/messages/missing/context", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestSearchMessages(t *testing.T) {
	s, db := testServer(t, nil)
	seed(t, db)

	w, body := doJSON(t, s, http.MethodGet, "/v1/search/messages?query=HELLO", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	msgs := body["messages"].([]any)
	if len(msgs) != 1 || msgs[0].(map[string]any)["id"] != "m1" {
		t.Errorf("messages = %v", msgs)
	}

	w, _ = doJSON(t, s, http.MethodGet, "/v1/search/messages", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing query: status = %d, want 400", w.Code)
	}
}

func TestSearchContacts(t *testing.T) {
	s, db := testServer(t, nil)
	seed(t, db)

	w, body := doJSON(t, s, http.MethodGet, "/v1/contacts?query=alice", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	contacts := body["contacts"].([]any)
	if len(contacts) != 1 {
		t.Errorf("contacts = %v", contacts)
	}
}

func TestSendMessage(t *testing.T) {
	sender := &stubSender{}
	s, _ := testServer(t, sender)

	w, body := doJSON(t, s, http.MethodPost, "/v1/messages",
		`{"recipient":"111@s.whatsapp.net","message":"hi"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", w.Code, body)
	}
	if body["id"] != "SRV123" {
		t.Errorf("id = %v", body["id"])
	}
	if sender.lastTo != "111@s.whatsapp.net" {
		t.Errorf("sent to %q", sender.lastTo)
	}
}

func TestSendMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"missing fields", `{"recipient":""}`, nil, http.StatusBadRequest},
		{"malformed body", `{`, nil, http.StatusBadRequest},
		{"invalid jid", `{"recipient":"x","message":"hi"}`, wa.ErrInvalidJID, http.StatusBadRequest},
		{"not connected", `{"recipient":"111@s.whatsapp.net","message":"hi"}`, wa.ErrNotConnected, http.StatusServiceUnavailable},
		{"not logged in", `{"recipient":"111@s.whatsapp.net","message":"hi"}`, wa.ErrNotLoggedIn, http.StatusServiceUnavailable},
		{"server rejects", `{"recipient":"111@s.whatsapp.net","message":"hi"}`, context.DeadlineExceeded, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := testServer(t, &stubSender{err: tt.err})
			w, _ := doJSON(t, s, http.MethodPost, "/v1/messages", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequestIDHeader(t *testing.T) {
	s, _ := testServer(t, nil)

	w, _ := doJSON(t, s, http.MethodGet, "/v1/status", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}
