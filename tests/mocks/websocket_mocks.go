package mocks

import (
	"sync"

	"github.com/mailsense/mailsense-backend/internal/services"
)

// EmittedEvent records one event delivered to a mock connection
type EmittedEvent struct {
	Event   string
	Payload interface{}
}

// MockConnection implements services.Connection and records emitted events
type MockConnection struct {
	mu     sync.Mutex
	events []EmittedEvent

	// EmitErr, when set, is returned from every Emit call
	EmitErr error
}

// Emit records the event
func (c *MockConnection) Emit(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, EmittedEvent{Event: event, Payload: payload})
	return c.EmitErr
}

// Events returns a copy of the recorded events
func (c *MockConnection) Events() []EmittedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]EmittedEvent(nil), c.events...)
}

// MockConnectionRegistry implements services.ConnectionRegistry over a static map
type MockConnectionRegistry struct {
	mu          sync.Mutex
	connections map[string][]services.Connection
}

// NewMockConnectionRegistry creates an empty registry
func NewMockConnectionRegistry() *MockConnectionRegistry {
	return &MockConnectionRegistry{connections: make(map[string][]services.Connection)}
}

// Add registers a connection for a user
func (r *MockConnectionRegistry) Add(userID string, conn services.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[userID] = append(r.connections[userID], conn)
}

// FindConnectionsForUser returns the connections registered for a user
func (r *MockConnectionRegistry) FindConnectionsForUser(userID string) []services.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]services.Connection(nil), r.connections[userID]...)
}
