package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mmartins/wamirror/internal/bus"
)

// State represents a connection lifecycle state.
type State string

const (
	// Disconnected is the initial state before any connection attempt.
	Disconnected State = "DISCONNECTED"
	// Connecting means a socket open / handshake is in flight.
	Connecting State = "CONNECTING"
	// AwaitingPairing means the session has no credentials and a pairing
	// challenge has been published.
	AwaitingPairing State = "AWAITING_PAIRING"
	// Open means the session is authenticated and receiving events.
	Open State = "OPEN"
	// Retrying means the connection closed for a recoverable reason and the
	// supervisor is backing off before the next attempt.
	Retrying State = "RETRYING"
	// LoggedOut is terminal: the session was invalidated server-side and
	// re-authentication is required.
	LoggedOut State = "LOGGED_OUT"
)

// validTransitions defines allowed state transitions. LoggedOut is terminal.
var validTransitions = map[State][]State{
	Disconnected:    {Connecting},
	Connecting:      {AwaitingPairing, Open, Retrying, LoggedOut},
	AwaitingPairing: {Open, Connecting, Retrying, LoggedOut},
	Open:            {Retrying, LoggedOut, Disconnected},
	Retrying:        {Connecting, LoggedOut, Disconnected},
	LoggedOut:       {},
}

// Machine tracks and enforces connection state transitions and publishes
// every change on the bus.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in Disconnected.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Disconnected,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Terminal reports whether the machine reached a state it cannot leave.
func (m *Machine) Terminal() bool {
	return m.Current() == LoggedOut
}

// Transition attempts to move to a new state. A transition to the current
// state is a no-op. Returns an error if the transition is not allowed.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "session.state_changed",
			Timestamp: time.Now(),
			Payload:   StateChange{From: from, To: to},
		})
	}
	return nil
}

// StateChange is the payload for state change events.
type StateChange struct {
	From State
	To   State
}
