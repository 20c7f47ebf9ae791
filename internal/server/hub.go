package server

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"classline/internal/events"
	"classline/internal/services"
)

// Hub owns the live connections and the registry, serializes
// register/unregister through a single loop, and fans outbound events
// out to per-user broadcast groups.
type Hub struct {
	registry       *Registry
	clients        map[string]*Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *outboundFrame
	messageService *services.MessageService
	logger         *WebSocketLogger
	mu             sync.RWMutex
	stopChan       chan struct{}
	stopOnce       sync.Once
	isRunning      int32
}

// outboundFrame targets either every connection of a user (UserID set)
// or one specific connection (ConnID set).
type outboundFrame struct {
	UserID  uuid.UUID
	ConnID  string
	Payload []byte
}

func NewHub(messageService *services.MessageService) *Hub {
	return &Hub{
		registry:       NewRegistry(),
		clients:        make(map[string]*Client),
		register:       make(chan *Client, 256),
		unregister:     make(chan *Client, 256),
		broadcast:      make(chan *outboundFrame, 256),
		messageService: messageService,
		logger:         NewWebSocketLogger(),
		stopChan:       make(chan struct{}),
	}
}

// Run processes registration and broadcast traffic until Stop.
func (h *Hub) Run() {
	atomic.StoreInt32(&h.isRunning, 1)
	defer atomic.StoreInt32(&h.isRunning, 0)

	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case frame := <-h.broadcast:
			h.handleBroadcast(frame)

		case <-h.stopChan:
			return
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	h.clients[client.connID] = client
	h.mu.Unlock()

	h.registry.Bind(client.connID, client.principal)
	h.logger.Info("client connected", client.principal.ID, client.connID)

	go client.writePump()
	go client.readPump()

	client.enqueue(events.NewFrame(events.EventConnected, events.ConnectedEvent{
		Message: "Successfully connected to chat server",
		UserID:  client.principal.ID,
	}).Encode())
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	_, registered := h.clients[client.connID]
	if registered {
		delete(h.clients, client.connID)
	}
	h.mu.Unlock()

	if !registered {
		return
	}

	_, wentOffline, _ := h.registry.Unbind(client.connID)
	close(client.send)
	client.conn.Close()

	if wentOffline {
		h.logger.Info("user offline", client.principal.ID, client.connID)
	} else {
		h.logger.Info("client disconnected", client.principal.ID, client.connID)
	}
}

func (h *Hub) handleBroadcast(frame *outboundFrame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if frame.ConnID != "" {
		if client, ok := h.clients[frame.ConnID]; ok {
			client.enqueue(frame.Payload)
		}
		return
	}

	for _, connID := range h.registry.ConnectionsFor(frame.UserID) {
		if client, ok := h.clients[connID]; ok {
			client.enqueue(frame.Payload)
		}
	}
}

// EmitToUser delivers a frame to every connection in the user's
// broadcast group. Offline users are skipped silently.
func (h *Hub) EmitToUser(userID uuid.UUID, frame events.Frame) {
	select {
	case h.broadcast <- &outboundFrame{UserID: userID, Payload: frame.Encode()}:
	case <-h.stopChan:
	}
}

// EmitToConn delivers a frame to one connection only.
func (h *Hub) EmitToConn(connID string, frame events.Frame) {
	select {
	case h.broadcast <- &outboundFrame{ConnID: connID, Payload: frame.Encode()}:
	case <-h.stopChan:
	}
}

func (h *Hub) IsOnline(userID uuid.UUID) bool {
	return h.registry.IsOnline(userID)
}

// Stop shuts the loop down and closes every connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for connID, client := range h.clients {
		h.registry.Unbind(connID)
		close(client.send)
		client.conn.Close()
	}
	h.clients = make(map[string]*Client)
}
