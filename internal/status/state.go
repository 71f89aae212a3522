// Package status enforces lifecycle state transitions for the daemon and for
// open conversations.
package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/matheus3301/chatsync/internal/bus"
)

// State is a lifecycle state.
type State string

// Daemon states.
const (
	Booting  State = "BOOTING"
	Ready    State = "READY"
	Degraded State = "DEGRADED"
	Stopping State = "STOPPING"
	Error    State = "ERROR"
)

// Conversation states.
const (
	Idle       State = "IDLE"
	Opening    State = "OPENING"
	Subscribed State = "SUBSCRIBED"
	Closed     State = "CLOSED"
)

// KindChanged is the bus kind published on every transition.
const KindChanged = "status.changed"

// Graph lists the allowed transitions out of each state.
type Graph map[State][]State

// DaemonGraph is the daemon lifecycle.
var DaemonGraph = Graph{
	Booting:  {Ready, Degraded, Error},
	Ready:    {Degraded, Stopping, Error},
	Degraded: {Ready, Stopping, Error},
	Stopping: {},
	Error:    {Booting, Stopping},
}

// ConversationGraph is the lifecycle of one open conversation view.
var ConversationGraph = Graph{
	Idle:       {Opening, Closed},
	Opening:    {Subscribed, Closed},
	Subscribed: {Closed},
	Closed:     {},
}

// Machine tracks and enforces state transitions.
type Machine struct {
	mu      sync.RWMutex
	graph   Graph
	current State
	bus     *bus.Bus
	topic   string
}

// New creates a machine over graph starting in initial. Transitions are
// published on b (if non-nil) under topic.
func New(graph Graph, initial State, b *bus.Bus, topic string) *Machine {
	return &Machine{
		graph:   graph,
		current: initial,
		bus:     b,
		topic:   topic,
	}
}

// NewDaemon creates a daemon machine in Booting.
func NewDaemon(b *bus.Bus) *Machine {
	return New(DaemonGraph, Booting, b, "daemon")
}

// NewConversation creates a conversation machine in Idle.
func NewConversation(b *bus.Bus, conversationKey string) *Machine {
	return New(ConversationGraph, Idle, b, conversationKey)
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

	allowed := m.graph[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      KindChanged,
			Topic:     m.topic,
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
