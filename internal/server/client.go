package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"classline/internal/events"
	"classline/internal/services"
	classline_errors "classline/pkg/errors"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	// bounded timeout for persistence work triggered by a single frame
	handleTimeout = 10 * time.Second
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Per-event budgets, refilled every minute.
type RateLimits struct {
	MaxMessages     int
	MaxTypingEvents int
	MaxReadReceipts int
	MaxStatusChecks int
}

var DefaultRateLimits = RateLimits{
	MaxMessages:     60,
	MaxTypingEvents: 60,
	MaxReadReceipts: 120,
	MaxStatusChecks: 30,
}

// ClientRateLimiter tracks per-connection event budgets.
type ClientRateLimiter struct {
	messageTokens int
	typingTokens  int
	readTokens    int
	statusTokens  int
	lastRefill    time.Time
	mu            sync.Mutex
}

func NewClientRateLimiter() *ClientRateLimiter {
	return &ClientRateLimiter{
		messageTokens: DefaultRateLimits.MaxMessages,
		typingTokens:  DefaultRateLimits.MaxTypingEvents,
		readTokens:    DefaultRateLimits.MaxReadReceipts,
		statusTokens:  DefaultRateLimits.MaxStatusChecks,
		lastRefill:    time.Now(),
	}
}

func (rl *ClientRateLimiter) Allow(event string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if time.Since(rl.lastRefill) >= time.Minute {
		rl.messageTokens = DefaultRateLimits.MaxMessages
		rl.typingTokens = DefaultRateLimits.MaxTypingEvents
		rl.readTokens = DefaultRateLimits.MaxReadReceipts
		rl.statusTokens = DefaultRateLimits.MaxStatusChecks
		rl.lastRefill = time.Now()
	}

	switch event {
	case events.EventSendMessage:
		if rl.messageTokens > 0 {
			rl.messageTokens--
			return true
		}
	case events.EventTypingStart, events.EventTypingStop:
		if rl.typingTokens > 0 {
			rl.typingTokens--
			return true
		}
	case events.EventMarkMessageRead:
		if rl.readTokens > 0 {
			rl.readTokens--
			return true
		}
	case events.EventCheckUserStatus:
		if rl.statusTokens > 0 {
			rl.statusTokens--
			return true
		}
	default:
		return true
	}
	return false
}

// Client is a single WebSocket connection bound to an authenticated
// principal. One user may hold several clients at once.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	connID       string
	principal   services.Principal
	rateLimiter *ClientRateLimiter
	// unix nanos, shared between the read and write pumps
	lastActivity atomic.Int64
	logger       *WebSocketLogger
}

func NewClient(hub *Hub, conn *websocket.Conn, principal services.Principal, logger *WebSocketLogger) *Client {
	c := &Client{
		hub:         hub,
		conn:        conn,
		send:        make(chan []byte, 256),
		connID:      uuid.NewString(),
		principal:   principal,
		rateLimiter: NewClientRateLimiter(),
		logger:      logger,
	}
	c.touchActivity()
	return c
}

func (c *Client) touchActivity() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func (c *Client) idle() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

// enqueue offers a payload to the write pump without ever blocking the
// hub loop. A client that cannot drain its buffer loses frames.
func (c *Client) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.logger.Warn("client send buffer full", c.principal.ID, c.connID)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.touchActivity()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket unexpected close", c.principal.ID, c.connID, err)
			}
			break
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.touchActivity()
		c.handleFrame(message)
	}
}

func (c *Client) handleFrame(message []byte) {
	var frame events.Frame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.emitError("Invalid message format")
		return
	}

	if !c.rateLimiter.Allow(frame.Event) {
		c.logger.Warn("rate limit exceeded", c.principal.ID, c.connID, zap.String("ws_event", frame.Event))
		c.emitError("Too many events, slow down")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	switch frame.Event {
	case events.EventSendMessage:
		c.handleSendMessage(ctx, frame.Data)
	case events.EventTypingStart:
		c.handleTyping(frame.Data, true)
	case events.EventTypingStop:
		c.handleTyping(frame.Data, false)
	case events.EventMarkMessageRead:
		c.handleMarkMessageRead(ctx, frame.Data)
	case events.EventCheckUserStatus:
		c.handleCheckUserStatus(frame.Data)
	default:
		c.logger.Warn("unknown event", c.principal.ID, c.connID, zap.String("ws_event", frame.Event))
		c.emitError("Unknown event: " + frame.Event)
	}
}

// handleSendMessage persists the message, echoes message_sent to the
// sender's own group (so every open tab renders it) and pushes
// new_message to the receiver's group if the receiver is online.
func (c *Client) handleSendMessage(ctx context.Context, data json.RawMessage) {
	var payload events.SendMessageData
	if err := json.Unmarshal(data, &payload); err != nil {
		c.emitError("Invalid send_message payload")
		return
	}

	msg, err := c.hub.messageService.Send(ctx, c.principal, payload.ReceiverID, payload.Content)
	if err != nil {
		c.logger.Error("send message failed", c.principal.ID, c.connID, err)
		c.emitError(clientErrorMessage(err, "Failed to send message"))
		return
	}

	c.hub.EmitToUser(msg.SenderID, events.NewFrame(events.EventMessageSent, msg))
	if c.hub.IsOnline(msg.ReceiverID) {
		c.hub.EmitToUser(msg.ReceiverID, events.NewFrame(events.EventNewMessage, msg))
	}
}

// Typing is ephemeral: nothing is persisted and an offline receiver is
// skipped without an error event.
func (c *Client) handleTyping(data json.RawMessage, isTyping bool) {
	var payload events.TypingData
	if err := json.Unmarshal(data, &payload); err != nil {
		c.emitError("Invalid typing payload")
		return
	}
	if !c.hub.IsOnline(payload.ReceiverID) {
		return
	}
	c.hub.EmitToUser(payload.ReceiverID, events.NewFrame(events.EventUserTyping, events.UserTypingEvent{
		UserID:   c.principal.ID,
		IsTyping: isTyping,
	}))
}

// handleMarkMessageRead flips the read flag and notifies both the
// reader's group and the original sender's group.
func (c *Client) handleMarkMessageRead(ctx context.Context, data json.RawMessage) {
	var payload events.MarkMessageReadData
	if err := json.Unmarshal(data, &payload); err != nil {
		c.emitError("Invalid mark_message_read payload")
		return
	}

	msg, err := c.hub.messageService.MarkRead(ctx, payload.MessageID, c.principal.ID)
	if err != nil {
		c.logger.Error("mark message read failed", c.principal.ID, c.connID, err)
		c.emitError(clientErrorMessage(err, "Failed to mark message as read"))
		return
	}

	frame := events.NewFrame(events.EventMessageRead, events.MessageReadEvent{
		MessageID: msg.ID,
		ReadAt:    time.Now().UTC().Format(time.RFC3339),
	})
	c.hub.EmitToUser(c.principal.ID, frame)
	if msg.SenderID != c.principal.ID && c.hub.IsOnline(msg.SenderID) {
		c.hub.EmitToUser(msg.SenderID, frame)
	}
}

// handleCheckUserStatus answers the asking connection only.
func (c *Client) handleCheckUserStatus(data json.RawMessage) {
	var payload events.CheckUserStatusData
	if err := json.Unmarshal(data, &payload); err != nil {
		c.emitError("Invalid check_user_status payload")
		return
	}
	c.enqueue(events.NewFrame(events.EventUserStatus, events.UserStatusEvent{
		UserID:   payload.UserID,
		IsOnline: c.hub.IsOnline(payload.UserID),
	}).Encode())
}

func (c *Client) emitError(message string) {
	c.enqueue(events.NewFrame(events.EventError, events.ErrorEvent{Message: message}).Encode())
}

// clientErrorMessage keeps expected failures readable for the client
// and hides everything else behind a generic message.
func clientErrorMessage(err error, fallback string) string {
	for _, sentinel := range []error{
		classline_errors.ErrInvalidInput,
		classline_errors.ErrNotFound,
		classline_errors.ErrUnauthorized,
		classline_errors.ErrForbidden,
		classline_errors.ErrConflict,
		classline_errors.ErrAlreadyExists,
		classline_errors.ErrRateLimited,
	} {
		if errors.Is(err, sentinel) {
			return err.Error()
		}
	}
	return fallback
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

			if c.idle() > pongWait*2 {
				c.logger.Info("client idle timeout", c.principal.ID, c.connID)
				return
			}
		}
	}
}
