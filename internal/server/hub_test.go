package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"classline/internal/domain/user"
	"classline/internal/events"
	"classline/internal/repository"
	"classline/internal/services"
)

// Hub tests follow the channel-driven style: fake clients carry a
// buffered send channel instead of a live connection, and frames are
// read off it with a timeout.

type hubFixture struct {
	hub        *Hub
	service    *services.MessageService
	instructor services.Principal
	student    services.Principal
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()

	userRepo := repository.NewMemoryUserRepository()
	convRepo := repository.NewMemoryConversationRepository()
	msgRepo := repository.NewMemoryMessageRepository()

	now := time.Now().UTC()
	instructor := user.User{ID: uuid.New(), DisplayName: "instructor", Role: user.RoleInstructor,
		Email: "instructor@classline.dev", IsActive: true, CreatedAt: now, UpdatedAt: now}
	student := user.User{ID: uuid.New(), DisplayName: "student", Role: user.RoleStudent,
		Email: "student@classline.dev", IsActive: true, CreatedAt: now, UpdatedAt: now}
	for _, u := range []user.User{instructor, student} {
		u := u
		if err := userRepo.Create(context.Background(), &u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	users := services.NewUserService(userRepo, nil, nil)
	conversations := services.NewConversationService(convRepo)
	messageService := services.NewMessageService(users, conversations, msgRepo, convRepo)

	hub := NewHub(messageService)
	go hub.Run()

	return &hubFixture{
		hub:        hub,
		service:    messageService,
		instructor: services.Principal{ID: instructor.ID, Role: instructor.Role, DisplayName: instructor.DisplayName},
		student:    services.Principal{ID: student.ID, Role: student.Role, DisplayName: student.DisplayName},
	}
}

// connect attaches a fake client the way handleRegister would, without
// starting pumps against a real connection.
func (f *hubFixture) connect(p services.Principal) *Client {
	c := &Client{
		hub:         f.hub,
		send:        make(chan []byte, 64),
		connID:      uuid.NewString(),
		principal:   p,
		rateLimiter: NewClientRateLimiter(),
		logger:      NewWebSocketLogger(),
	}
	f.hub.mu.Lock()
	f.hub.clients[c.connID] = c
	f.hub.mu.Unlock()
	f.hub.registry.Bind(c.connID, p)
	return c
}

func recvFrame(t *testing.T, c *Client) events.Frame {
	t.Helper()
	select {
	case payload := <-c.send:
		var frame events.Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			t.Fatalf("invalid frame %s: %v", payload, err)
		}
		return frame
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timed out waiting for frame")
		return events.Frame{}
	}
}

func expectSilence(t *testing.T, c *Client) {
	t.Helper()
	select {
	case payload := <-c.send:
		t.Fatalf("unexpected frame: %s", payload)
	case <-time.After(50 * time.Millisecond):
	}
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestEmitToUserReachesEveryTab(t *testing.T) {
	f := newHubFixture(t)

	tab1 := f.connect(f.student)
	tab2 := f.connect(f.student)

	f.hub.EmitToUser(f.student.ID, events.NewFrame(events.EventUserTyping, events.UserTypingEvent{
		UserID:   f.instructor.ID,
		IsTyping: true,
	}))

	for _, tab := range []*Client{tab1, tab2} {
		frame := recvFrame(t, tab)
		if frame.Event != events.EventUserTyping {
			t.Errorf("event = %q, want %q", frame.Event, events.EventUserTyping)
		}
	}
}

func TestEmitToUserOfflineIsDropped(t *testing.T) {
	f := newHubFixture(t)
	watcher := f.connect(f.instructor)

	f.hub.EmitToUser(uuid.New(), events.NewFrame(events.EventNewMessage, nil))

	expectSilence(t, watcher)
}

func TestSendMessageFanOut(t *testing.T) {
	f := newHubFixture(t)

	senderTab1 := f.connect(f.instructor)
	senderTab2 := f.connect(f.instructor)
	receiverTab := f.connect(f.student)

	senderTab1.handleFrame(events.NewFrame(events.EventSendMessage, events.SendMessageData{
		ReceiverID: f.student.ID,
		Content:    "hello",
	}).Encode())

	// Both sender tabs see the echo.
	for _, tab := range []*Client{senderTab1, senderTab2} {
		frame := recvFrame(t, tab)
		if frame.Event != events.EventMessageSent {
			t.Fatalf("sender event = %q, want %q", frame.Event, events.EventMessageSent)
		}
		var msg events.MessageEvent
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			t.Fatalf("unmarshal message: %v", err)
		}
		if msg.Content != "hello" || msg.SenderID != f.instructor.ID {
			t.Errorf("echoed message = %+v", msg)
		}
	}

	frame := recvFrame(t, receiverTab)
	if frame.Event != events.EventNewMessage {
		t.Fatalf("receiver event = %q, want %q", frame.Event, events.EventNewMessage)
	}
	var msg events.MessageEvent
	if err := json.Unmarshal(frame.Data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.ReceiverID != f.student.ID || msg.SenderName != "instructor" {
		t.Errorf("delivered message = %+v", msg)
	}
}

func TestSendMessageToOfflineReceiverStillPersists(t *testing.T) {
	f := newHubFixture(t)
	senderTab := f.connect(f.instructor)

	senderTab.handleFrame(events.NewFrame(events.EventSendMessage, events.SendMessageData{
		ReceiverID: f.student.ID,
		Content:    "offline delivery",
	}).Encode())

	frame := recvFrame(t, senderTab)
	if frame.Event != events.EventMessageSent {
		t.Fatalf("sender event = %q, want %q", frame.Event, events.EventMessageSent)
	}

	// The message waits in the store for the receiver's next fetch.
	_, messages, err := f.service.GetConversation(context.Background(), f.student, f.instructor.ID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "offline delivery" {
		t.Errorf("stored history = %+v, want the offline message", messages)
	}
}

func TestSendMessageErrorGoesToSenderOnly(t *testing.T) {
	f := newHubFixture(t)

	senderTab := f.connect(f.student)
	otherTab := f.connect(f.instructor)

	senderTab.handleFrame(events.NewFrame(events.EventSendMessage, events.SendMessageData{
		ReceiverID: f.instructor.ID,
		Content:    "   ",
	}).Encode())

	frame := recvFrame(t, senderTab)
	if frame.Event != events.EventError {
		t.Fatalf("event = %q, want %q", frame.Event, events.EventError)
	}
	var payload events.ErrorEvent
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("unmarshal error event: %v", err)
	}
	if payload.Message == "" {
		t.Error("error event carries no message")
	}

	expectSilence(t, otherTab)
}

func TestTypingForwardedToReceiverGroupOnly(t *testing.T) {
	f := newHubFixture(t)

	senderTab := f.connect(f.instructor)
	receiverTab := f.connect(f.student)

	senderTab.handleFrame(events.NewFrame(events.EventTypingStart, events.TypingData{
		ReceiverID: f.student.ID,
	}).Encode())

	frame := recvFrame(t, receiverTab)
	if frame.Event != events.EventUserTyping {
		t.Fatalf("event = %q, want %q", frame.Event, events.EventUserTyping)
	}
	var payload events.UserTypingEvent
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("unmarshal typing event: %v", err)
	}
	if payload.UserID != f.instructor.ID || !payload.IsTyping {
		t.Errorf("typing payload = %+v", payload)
	}

	// The typist gets no echo.
	expectSilence(t, senderTab)

	senderTab.handleFrame(events.NewFrame(events.EventTypingStop, events.TypingData{
		ReceiverID: f.student.ID,
	}).Encode())
	frame = recvFrame(t, receiverTab)
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("unmarshal typing event: %v", err)
	}
	if payload.IsTyping {
		t.Error("typing_stop forwarded with isTyping = true")
	}
}

func TestTypingToOfflineReceiverIsSilent(t *testing.T) {
	f := newHubFixture(t)
	senderTab := f.connect(f.instructor)

	senderTab.handleFrame(events.NewFrame(events.EventTypingStart, events.TypingData{
		ReceiverID: f.student.ID,
	}).Encode())

	// No error event, no echo: the event just evaporates.
	expectSilence(t, senderTab)
}

func TestMarkMessageReadNotifiesReaderAndSender(t *testing.T) {
	f := newHubFixture(t)

	senderTab := f.connect(f.instructor)
	readerTab := f.connect(f.student)

	msg, err := f.service.Send(context.Background(), f.instructor, f.student.ID, "read me")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	readerTab.handleFrame(events.NewFrame(events.EventMarkMessageRead, events.MarkMessageReadData{
		MessageID: msg.ID,
	}).Encode())

	for _, tab := range []*Client{readerTab, senderTab} {
		frame := recvFrame(t, tab)
		if frame.Event != events.EventMessageRead {
			t.Fatalf("event = %q, want %q", frame.Event, events.EventMessageRead)
		}
		var payload events.MessageReadEvent
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			t.Fatalf("unmarshal message_read: %v", err)
		}
		if payload.MessageID != msg.ID {
			t.Errorf("messageId = %s, want %s", payload.MessageID, msg.ID)
		}
		if payload.ReadAt == "" {
			t.Error("readAt missing")
		}
	}
}

func TestMarkMessageReadByNonReceiverEmitsError(t *testing.T) {
	f := newHubFixture(t)
	senderTab := f.connect(f.instructor)

	msg, err := f.service.Send(context.Background(), f.instructor, f.student.ID, "mine")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	senderTab.handleFrame(events.NewFrame(events.EventMarkMessageRead, events.MarkMessageReadData{
		MessageID: msg.ID,
	}).Encode())

	frame := recvFrame(t, senderTab)
	if frame.Event != events.EventError {
		t.Errorf("event = %q, want %q", frame.Event, events.EventError)
	}
}

func TestCheckUserStatusAnswersCallerConnectionOnly(t *testing.T) {
	f := newHubFixture(t)

	askingTab := f.connect(f.instructor)
	otherTab := f.connect(f.instructor)
	subjectTab := f.connect(f.student)

	askingTab.handleFrame(events.NewFrame(events.EventCheckUserStatus, events.CheckUserStatusData{
		UserID: f.student.ID,
	}).Encode())

	frame := recvFrame(t, askingTab)
	if frame.Event != events.EventUserStatus {
		t.Fatalf("event = %q, want %q", frame.Event, events.EventUserStatus)
	}
	var payload events.UserStatusEvent
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("unmarshal user_status: %v", err)
	}
	if payload.UserID != f.student.ID || !payload.IsOnline {
		t.Errorf("user_status = %+v, want online student", payload)
	}

	expectSilence(t, otherTab)
	expectSilence(t, subjectTab)

	// After the subject disconnects, the same question reports offline.
	f.hub.registry.Unbind(subjectTab.connID)
	askingTab.handleFrame(events.NewFrame(events.EventCheckUserStatus, events.CheckUserStatusData{
		UserID: f.student.ID,
	}).Encode())
	frame = recvFrame(t, askingTab)
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		t.Fatalf("unmarshal user_status: %v", err)
	}
	if payload.IsOnline {
		t.Error("user_status reports online after last connection unbound")
	}
}

func TestMalformedFrameEmitsError(t *testing.T) {
	f := newHubFixture(t)
	tab := f.connect(f.student)

	tab.handleFrame([]byte(`{not json`))

	frame := recvFrame(t, tab)
	if frame.Event != events.EventError {
		t.Errorf("event = %q, want %q", frame.Event, events.EventError)
	}
}

func TestUnknownEventEmitsError(t *testing.T) {
	f := newHubFixture(t)
	tab := f.connect(f.student)

	tab.handleFrame(events.Frame{Event: "teleport", Data: mustMarshal(t, map[string]string{})}.Encode())

	frame := recvFrame(t, tab)
	if frame.Event != events.EventError {
		t.Errorf("event = %q, want %q", frame.Event, events.EventError)
	}
}

func TestClientRateLimiterExhaustsStatusBudget(t *testing.T) {
	rl := NewClientRateLimiter()

	for i := 0; i < DefaultRateLimits.MaxStatusChecks; i++ {
		if !rl.Allow(events.EventCheckUserStatus) {
			t.Fatalf("Allow() = false on call %d within budget", i+1)
		}
	}
	if rl.Allow(events.EventCheckUserStatus) {
		t.Error("Allow() = true past the budget")
	}
	// Other event budgets are unaffected.
	if !rl.Allow(events.EventSendMessage) {
		t.Error("message budget drained by status checks")
	}
}
