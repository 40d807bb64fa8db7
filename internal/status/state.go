package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/minhbui/trovia/internal/bus"
)

// State represents a daemon runtime state.
type State string

const (
	Booting        State = "BOOTING"
	AuthRequired   State = "AUTH_REQUIRED"
	Authenticating State = "AUTHENTICATING"
	Connecting     State = "CONNECTING"
	Syncing        State = "SYNCING"
	Ready          State = "READY"
	Reconnecting   State = "RECONNECTING"
	Error          State = "ERROR"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:        {AuthRequired, Connecting, Error},
	AuthRequired:   {Authenticating, Error},
	Authenticating: {Connecting, AuthRequired, Error},
	Connecting:     {Syncing, AuthRequired, Reconnecting, Error},
	Syncing:        {Ready, Reconnecting, AuthRequired, Error},
	Ready:          {Reconnecting, AuthRequired, Error},
	Reconnecting:   {Connecting, AuthRequired, Error},
	Error:          {Booting},
}

// Machine tracks and enforces daemon runtime state transitions.
// Session expiry from the request pipeline lands here as a transition to
// AUTH_REQUIRED, which any state past authentication is allowed to make.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "session.status_changed",
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
