package events

import (
	"encoding/json"

	"github.com/google/uuid"

	"classline/internal/domain/chat"
)

// Wire event names. A compatible client/server pair must use these
// exact names and payload shapes.

// Client -> server
const (
	EventSendMessage     = "send_message"
	EventTypingStart     = "typing_start"
	EventTypingStop      = "typing_stop"
	EventMarkMessageRead = "mark_message_read"
	EventCheckUserStatus = "check_user_status"
)

// Server -> client
const (
	EventConnected   = "connected"
	EventNewMessage  = "new_message"
	EventMessageSent = "message_sent"
	EventMessageRead = "message_read"
	EventUserTyping  = "user_typing"
	EventUserStatus  = "user_status"
	EventError       = "error"
)

// Frame is the envelope for every message on the realtime channel.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame marshals payload into a Frame. Marshal errors are treated as
// programmer errors; payload types below are all marshalable.
func NewFrame(event string, payload interface{}) Frame {
	data, _ := json.Marshal(payload)
	return Frame{Event: event, Data: data}
}

func (f Frame) Encode() []byte {
	data, _ := json.Marshal(f)
	return data
}

// Inbound payloads.

type SendMessageData struct {
	ReceiverID uuid.UUID `json:"receiverId"`
	Content    string    `json:"content"`
}

type TypingData struct {
	ReceiverID uuid.UUID `json:"receiverId"`
}

type MarkMessageReadData struct {
	MessageID uuid.UUID `json:"messageId"`
}

type CheckUserStatusData struct {
	UserID uuid.UUID `json:"userId"`
}

// Outbound payloads.

type ConnectedEvent struct {
	Message string    `json:"message"`
	UserID  uuid.UUID `json:"userId"`
}

type MessageEvent = chat.Message

type MessageReadEvent struct {
	MessageID uuid.UUID `json:"messageId"`
	ReadAt    string    `json:"readAt"`
}

type UserTypingEvent struct {
	UserID   uuid.UUID `json:"userId"`
	IsTyping bool      `json:"isTyping"`
}

type UserStatusEvent struct {
	UserID   uuid.UUID `json:"userId"`
	IsOnline bool      `json:"isOnline"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}
