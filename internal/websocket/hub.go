package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/mailsense/mailsense-backend/internal/services"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeNewEmail    MessageType = "new_email"
	MessageTypeError       MessageType = "error"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    MessageType `json:"type"`
	UserID  string      `json:"user_id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// NewEmailPayload notifies subscribers that a message arrived for one of
// their mailboxes.
type NewEmailPayload struct {
	ID             uint   `json:"id"`
	MailboxAddress string `json:"mailbox_address"`
	SenderEmail    string `json:"sender_email"`
	SenderName     string `json:"sender_name,omitempty"`
	Subject        string `json:"subject,omitempty"`
	ReceivedAt     string `json:"received_at"`
}

// Hub maintains the set of active clients and routes messages to the
// connections subscribed to each user. It implements
// services.ConnectionRegistry so enrichment progress flows through it.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// User subscriptions: owner user ID -> set of clients
	subscriptions map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Subscribe to a user's events
	subscribe chan *subscriptionRequest

	// Unsubscribe from a user's events
	unsubscribeUser chan *subscriptionRequest

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger
}

type subscriptionRequest struct {
	client *Client
	userID string
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:         make(map[*Client]bool),
		subscriptions:   make(map[string]map[*Client]bool),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		subscribe:       make(chan *subscriptionRequest),
		unsubscribeUser: make(chan *subscriptionRequest),
		logger:          logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client registered")
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				// Remove from all subscriptions
				for userID, subscribers := range h.subscriptions {
					delete(subscribers, client)
					if len(subscribers) == 0 {
						delete(h.subscriptions, userID)
					}
				}
			}
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client unregistered")
			}

		case req := <-h.subscribe:
			h.mu.Lock()
			if h.subscriptions[req.userID] == nil {
				h.subscriptions[req.userID] = make(map[*Client]bool)
			}
			h.subscriptions[req.userID][req.client] = true
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client subscribed to user events", slog.String("user_id", req.userID))
			}

		case req := <-h.unsubscribeUser:
			h.mu.Lock()
			if subscribers, ok := h.subscriptions[req.userID]; ok {
				delete(subscribers, req.client)
				if len(subscribers) == 0 {
					delete(h.subscriptions, req.userID)
				}
			}
			h.mu.Unlock()
			if h.logger != nil {
				h.logger.Debug("client unsubscribed from user events", slog.String("user_id", req.userID))
			}
		}
	}
}

// Register adds a client to the hub
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Subscribe subscribes a client to a user's events
func (h *Hub) Subscribe(client *Client, userID string) {
	h.subscribe <- &subscriptionRequest{client: client, userID: userID}
}

// Unsubscribe unsubscribes a client from a user's events
func (h *Hub) Unsubscribe(client *Client, userID string) {
	h.unsubscribeUser <- &subscriptionRequest{client: client, userID: userID}
}

// FindConnectionsForUser returns the live connections subscribed to userID.
func (h *Hub) FindConnectionsForUser(userID string) []services.Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subscribers := h.subscriptions[userID]
	if len(subscribers) == 0 {
		return nil
	}
	connections := make([]services.Connection, 0, len(subscribers))
	for client := range subscribers {
		connections = append(connections, client)
	}
	return connections
}

// BroadcastToUser sends a typed message to every connection subscribed to
// userID. Slow clients are skipped, not waited on.
func (h *Hub) BroadcastToUser(userID string, msgType MessageType, payload interface{}) {
	data, err := json.Marshal(WSMessage{Type: msgType, Payload: payload})
	if err != nil {
		if h.logger != nil {
			h.logger.Error("failed to marshal broadcast message", slog.Any("error", err))
		}
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.subscriptions[userID] {
		select {
		case client.send <- data:
		default:
			// Client buffer full, skip
		}
	}
}

// BroadcastNewEmail notifies userID's subscribers about a freshly ingested
// email.
func (h *Hub) BroadcastNewEmail(userID string, payload *NewEmailPayload) {
	h.BroadcastToUser(userID, MessageTypeNewEmail, payload)
}
