package wa

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mdp/qrterminal/v3"
	"github.com/mmartins/wamirror/internal/bus"
	"github.com/mmartins/wamirror/internal/paths"
	"github.com/mmartins/wamirror/internal/status"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.uber.org/zap"
)

// ErrLoggedOut is returned by Run when the phone revokes the pairing. The
// caller shuts the process down; restarting without re-pairing is pointless.
var ErrLoggedOut = errors.New("session logged out by remote")

const (
	retryBaseDelay = 2 * time.Second
	retryMaxDelay  = 60 * time.Second
)

// client is the slice of the adapter the supervisor drives.
type client interface {
	IsLoggedIn() bool
	Connect() error
	Disconnect()
	PhoneNumber() string
	GetQRChannel(ctx context.Context) (<-chan whatsmeow.QRChannelItem, error)
}

// Supervisor owns the connection lifecycle: dialing, pairing, and reconnect
// backoff. The adapter has auto-reconnect disabled, so every redial passes
// through here and starts from a fully torn down socket.
type Supervisor struct {
	adapter client
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger
	dataDir string

	// In auth mode the QR code is rendered to the terminal; otherwise it is
	// written as a PNG under the data dir for out-of-band scanning.
	authMode bool
}

// NewSupervisor creates a supervisor for serve mode.
func NewSupervisor(adapter *Adapter, b *bus.Bus, machine *status.Machine, logger *zap.Logger, dataDir string) *Supervisor {
	return &Supervisor{
		adapter: adapter,
		bus:     b,
		machine: machine,
		logger:  logger,
		dataDir: dataDir,
	}
}

// NewBootstrapSupervisor creates a supervisor for the interactive pairing
// flow, rendering QR codes to stdout.
func NewBootstrapSupervisor(adapter *Adapter, b *bus.Bus, machine *status.Machine, logger *zap.Logger, dataDir string) *Supervisor {
	s := NewSupervisor(adapter, b, machine, logger, dataDir)
	s.authMode = true
	return s
}

// nextDelay returns the backoff for the given zero-based attempt: the base
// delay doubled per attempt, capped.
func nextDelay(attempt int) time.Duration {
	d := retryBaseDelay
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return d
}

// Run drives the connection until the context ends or the session is
// revoked. Disconnects trigger a full teardown followed by a bounded
// exponential backoff redial; a logged-out event ends the loop with
// ErrLoggedOut.
func (s *Supervisor) Run(ctx context.Context) error {
	ch, unsub := s.bus.Subscribe("session.", 64)
	defer unsub()

	if err := s.connectWithRetry(ctx); err != nil {
		return err
	}

	attempt := 0
	for {
		select {
		case <-ctx.Done():
			s.adapter.Disconnect()
			return ctx.Err()
		case evt := <-ch:
			switch evt.Kind {
			case "session.connected":
				attempt = 0
			case "session.logged_out":
				s.adapter.Disconnect()
				return ErrLoggedOut
			case "session.disconnected":
				s.adapter.Disconnect()
				// A logout may already have landed on the machine even
				// though its bus event is still queued behind this one.
				if s.machine.Terminal() {
					return ErrLoggedOut
				}
				delay := nextDelay(attempt)
				attempt++
				s.logger.Warn("connection lost, redialing",
					zap.Duration("delay", delay),
					zap.Int("attempt", attempt))
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
				if s.machine.Terminal() {
					return ErrLoggedOut
				}
				_ = s.machine.Transition(status.Connecting)
				if err := s.connect(ctx); err != nil {
					// Feed the failure back through the same path.
					s.logger.Error("redial failed", zap.Error(err))
					s.bus.Publish(bus.Event{Kind: "session.disconnected", Timestamp: time.Now()})
				}
			}
		}
	}
}

// connectWithRetry dials until a connect attempt succeeds or the context
// ends. Success here means the socket came up; pairing state is handled by
// the QR flow inside connect.
func (s *Supervisor) connectWithRetry(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if s.machine.Terminal() {
			return ErrLoggedOut
		}
		_ = s.machine.Transition(status.Connecting)
		err := s.connect(ctx)
		if err == nil {
			return nil
		}
		delay := nextDelay(attempt)
		s.logger.Error("connect failed", zap.Error(err), zap.Duration("retry_in", delay))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connect performs one dial. When unpaired it opens the QR channel first and
// consumes pairing codes in the background.
func (s *Supervisor) connect(ctx context.Context) error {
	if s.adapter.IsLoggedIn() {
		return s.adapter.Connect()
	}

	qrChan, err := s.adapter.GetQRChannel(ctx)
	if err != nil {
		return err
	}
	if err := s.adapter.Connect(); err != nil {
		return err
	}

	go func() {
		for item := range qrChan {
			switch item.Event {
			case "code":
				_ = s.machine.Transition(status.AwaitingPairing)
				s.publishQR(item.Code)
			case "success":
				s.logger.Info("pairing complete")
			case "timeout":
				s.logger.Warn("pairing QR expired without scan")
				s.bus.Publish(bus.Event{Kind: "session.disconnected", Timestamp: time.Now()})
			}
		}
	}()
	return nil
}

// publishQR surfaces a fresh pairing code: terminal rendering in auth mode,
// a PNG under the data dir otherwise.
func (s *Supervisor) publishQR(code string) {
	s.bus.Publish(bus.Event{Kind: "session.qr", Timestamp: time.Now(), Payload: code})

	if s.authMode {
		fmt.Println("Scan this QR code with WhatsApp on your phone:")
		qrterminal.GenerateHalfBlock(code, qrterminal.L, os.Stdout)
		return
	}

	imgPath := paths.QRImagePath(s.dataDir)
	if err := qrcode.WriteFile(code, qrcode.Medium, 256, imgPath); err != nil {
		s.logger.Error("failed to write pairing QR image", zap.Error(err))
		return
	}
	s.logger.Info("pairing required, QR image written", zap.String("path", imgPath))
}

// Bootstrap runs the interactive pairing flow: dial, render QR codes, and
// wait until the session is both paired and connected. Already-paired
// sessions return immediately.
func (s *Supervisor) Bootstrap(ctx context.Context) error {
	if s.adapter.IsLoggedIn() {
		s.logger.Info("already paired", zap.String("phone", s.adapter.PhoneNumber()))
		fmt.Printf("Already paired as +%s. Run without --auth to start mirroring.\n", s.adapter.PhoneNumber())
		return nil
	}

	ch, unsub := s.bus.Subscribe("session.", 64)
	defer unsub()

	if err := s.connect(ctx); err != nil {
		return fmt.Errorf("connect for pairing: %w", err)
	}
	defer s.adapter.Disconnect()

	paired := false
	connected := false
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("pairing not completed: %w", ctx.Err())
		case evt := <-ch:
			switch evt.Kind {
			case "session.paired":
				paired = true
			case "session.connected":
				connected = true
			case "session.logged_out":
				return ErrLoggedOut
			}
			if paired && connected {
				fmt.Printf("Paired as +%s. Run without --auth to start mirroring.\n", s.adapter.PhoneNumber())
				return nil
			}
		}
	}
}
