package wa

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmartins/wamirror/internal/paths"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotConnected is returned by SendText when the socket is down. Callers
// surface it as a retryable condition rather than touching the store.
var ErrNotConnected = errors.New("not connected to WhatsApp")

// ErrNotLoggedIn is returned when the session has no paired credentials.
var ErrNotLoggedIn = errors.New("no paired WhatsApp session")

// ErrInvalidJID is returned when a recipient address cannot be parsed.
var ErrInvalidJID = errors.New("invalid JID")

// Adapter wraps the whatsmeow client. It owns no reconnect policy: automatic
// reconnection is disabled so the supervisor fully controls the dial cycle.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *zap.Logger
}

// NewAdapter opens the credential store under dataDir and builds a client
// around the first (only) device.
func NewAdapter(ctx context.Context, dataDir string, logger *zap.Logger) (*Adapter, error) {
	// Device name shown on the phone's linked devices list.
	wastore.SetOSInfo("wamirror", [3]uint32{0, 1, 0})

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", paths.SessionDBPath(dataDir)),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)
	client.EnableAutoReconnect = false

	return &Adapter{
		client:    client,
		container: container,
		logger:    logger,
	}, nil
}

// IsLoggedIn reports whether the session holds paired credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// IsConnected reports whether the socket is currently up.
func (a *Adapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Connect dials WhatsApp.
func (a *Adapter) Connect() error {
	a.logger.Info("connecting to WhatsApp")
	return a.client.Connect()
}

// Disconnect tears the socket down. Safe to call when already down.
func (a *Adapter) Disconnect() {
	a.client.Disconnect()
}

// Logout invalidates the pairing and removes the stored credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// RegisterEventHandler adds a handler for raw whatsmeow events.
func (a *Adapter) RegisterEventHandler(handler whatsmeow.EventHandler) {
	a.client.AddEventHandler(handler)
}

// PhoneNumber returns the paired phone number, or empty when unpaired.
func (a *Adapter) PhoneNumber() string {
	if a.client.Store.ID == nil {
		return ""
	}
	return a.client.Store.ID.User
}

// SendText sends a plain text message and returns the server-assigned
// message id. The sent message is not written to the store here; it comes
// back through the event stream like any other message.
func (a *Adapter) SendText(ctx context.Context, jid string, text string) (string, error) {
	if !a.IsLoggedIn() {
		return "", ErrNotLoggedIn
	}
	if !a.IsConnected() {
		return "", ErrNotConnected
	}
	to, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidJID, jid)
	}
	resp, err := a.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// GetQRChannel returns the pairing QR channel. Must be called before Connect
// and only when unpaired.
func (a *Adapter) GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	if a.IsLoggedIn() {
		return nil, fmt.Errorf("already logged in")
	}
	ch, err := a.client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("get QR channel: %w", err)
	}
	return ch, nil
}
