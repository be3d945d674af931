package wa

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmartins/wamirror/internal/bus"
	"github.com/mmartins/wamirror/internal/status"
	"go.mau.fi/whatsmeow"
	"go.uber.org/zap"
)

type stubClient struct {
	connects  atomic.Int32
	connected chan struct{}
}

func (c *stubClient) IsLoggedIn() bool    { return true }
func (c *stubClient) Disconnect()         {}
func (c *stubClient) PhoneNumber() string { return "5511999999999" }

func (c *stubClient) Connect() error {
	c.connects.Add(1)
	select {
	case c.connected <- struct{}{}:
	default:
	}
	return nil
}

func (c *stubClient) GetQRChannel(context.Context) (<-chan whatsmeow.QRChannelItem, error) {
	return nil, errors.New("logged in")
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 4 * time.Second},
		{2, 8 * time.Second},
		{3, 16 * time.Second},
		{4, 32 * time.Second},
		{5, 60 * time.Second},
		{10, 60 * time.Second},
		{100, 60 * time.Second},
	}

	for _, tt := range tests {
		if got := nextDelay(tt.attempt); got != tt.want {
			t.Errorf("nextDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRunStopsRedialingAfterLogout(t *testing.T) {
	b := bus.New()
	machine := status.NewMachine(b)
	stub := &stubClient{connected: make(chan struct{}, 1)}
	s := &Supervisor{
		adapter: stub,
		bus:     b,
		machine: machine,
		logger:  zap.NewNop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case <-stub.connected:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for initial connect")
	}

	// The phone revokes the session. The machine reaches the terminal
	// state before the supervisor drains the disconnect event, mimicking
	// a disconnect queued just ahead of the logout.
	if err := machine.Transition(status.LoggedOut); err != nil {
		t.Fatal(err)
	}
	b.Publish(bus.Event{Kind: "session.disconnected", Timestamp: time.Now()})

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrLoggedOut) {
			t.Errorf("Run() = %v, want ErrLoggedOut", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after logout")
	}

	if n := stub.connects.Load(); n != 1 {
		t.Errorf("connect attempts = %d, want 1 (no redial with revoked credentials)", n)
	}
}
