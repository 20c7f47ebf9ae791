package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"classline/config"
	"classline/internal/domain/chat"
	"classline/internal/domain/user"
	"classline/internal/middleware"
	"classline/internal/repository"
	"classline/internal/services"
)

type restFixture struct {
	router          *gin.Engine
	instructor      user.User
	student         user.User
	instructorToken string
	studentToken    string
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

func newRESTFixture(t *testing.T) *restFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	userRepo := repository.NewMemoryUserRepository()
	convRepo := repository.NewMemoryConversationRepository()
	msgRepo := repository.NewMemoryMessageRepository()

	now := time.Now().UTC()
	instructor := user.User{ID: uuid.New(), DisplayName: "Dana Instructor", Role: user.RoleInstructor,
		Email: "dana@classline.dev", IsActive: true, CreatedAt: now, UpdatedAt: now}
	student := user.User{ID: uuid.New(), DisplayName: "Sam Student", Role: user.RoleStudent,
		Email: "sam@classline.dev", IsActive: true, CreatedAt: now, UpdatedAt: now}
	for _, u := range []user.User{instructor, student} {
		u := u
		if err := userRepo.Create(context.Background(), &u); err != nil {
			t.Fatalf("seed user: %v", err)
		}
	}

	cfg := &config.Config{JWTSecret: "test-secret", JWTExpiryMin: 5}
	authService := services.NewAuthService(userRepo, cfg)
	userService := services.NewUserService(userRepo, nil, nil)
	conversationService := services.NewConversationService(convRepo)
	messageService := services.NewMessageService(userService, conversationService, msgRepo, convRepo)

	chatHandler := NewChatHandler(messageService)
	userHandler := NewUserHandler(userService)

	router := gin.New()
	authed := router.Group("", middleware.AuthMiddleware(authService))
	authed.POST("/chat/send", chatHandler.Send)
	authed.GET("/chat/conversation/:participantId", chatHandler.GetConversation)
	authed.GET("/chat/conversations", chatHandler.GetConversations)
	authed.POST("/chat/mark-read", chatHandler.MarkRead)
	authed.GET("/users", userHandler.List)
	authed.GET("/users/:id", userHandler.GetByID)

	instructorToken, _, err := authService.IssueAccessToken(instructor)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	studentToken, _, err := authService.IssueAccessToken(student)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	return &restFixture{
		router:          router,
		instructor:      instructor,
		student:         student,
		instructorToken: instructorToken,
		studentToken:    studentToken,
	}
}

func (f *restFixture) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("invalid envelope %s: %v", w.Body.Bytes(), err)
	}
	return w, env
}

func TestSendEndpoint(t *testing.T) {
	f := newRESTFixture(t)

	w, env := f.do(t, http.MethodPost, "/chat/send", f.instructorToken, map[string]interface{}{
		"receiverId": f.student.ID,
		"content":    "homework is posted",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("success = false, error = %q", env.Error)
	}

	var msg chat.Message
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}
	if msg.SenderID != f.instructor.ID || msg.ReceiverID != f.student.ID {
		t.Errorf("message endpoints = %s -> %s", msg.SenderID, msg.ReceiverID)
	}
	if msg.SenderName != "Dana Instructor" || msg.ReceiverName != "Sam Student" {
		t.Errorf("denormalized names = %q -> %q", msg.SenderName, msg.ReceiverName)
	}
	if msg.IsRead {
		t.Error("fresh message reported as read")
	}
}

func TestSendEndpointValidation(t *testing.T) {
	f := newRESTFixture(t)

	cases := []struct {
		name string
		body map[string]interface{}
		want int
	}{
		{"missing content", map[string]interface{}{"receiverId": f.student.ID}, http.StatusBadRequest},
		{"missing receiver", map[string]interface{}{"content": "x"}, http.StatusBadRequest},
		{"unknown receiver", map[string]interface{}{"receiverId": uuid.New(), "content": "x"}, http.StatusNotFound},
		{"self message", map[string]interface{}{"receiverId": f.instructor.ID, "content": "x"}, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, env := f.do(t, http.MethodPost, "/chat/send", f.instructorToken, tc.body)
			if w.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tc.want, w.Body.String())
			}
			if env.Success {
				t.Error("success = true on failed request")
			}
			if env.Error == "" {
				t.Error("error field empty on failed request")
			}
		})
	}
}

func TestEndpointsRequireToken(t *testing.T) {
	f := newRESTFixture(t)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/chat/send"},
		{http.MethodGet, "/chat/conversations"},
		{http.MethodGet, "/chat/conversation/" + f.student.ID.String()},
		{http.MethodPost, "/chat/mark-read"},
		{http.MethodGet, "/users"},
	}

	for _, p := range paths {
		w, env := f.do(t, p.method, p.path, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", p.method, p.path, w.Code)
		}
		if env.Success {
			t.Errorf("%s %s success = true without token", p.method, p.path)
		}
	}
}

func TestConversationRoundTrip(t *testing.T) {
	f := newRESTFixture(t)

	// Instructor messages the student over REST.
	if w, _ := f.do(t, http.MethodPost, "/chat/send", f.instructorToken, map[string]interface{}{
		"receiverId": f.student.ID, "content": "first",
	}); w.Code != http.StatusOK {
		t.Fatalf("send status = %d", w.Code)
	}
	if w, _ := f.do(t, http.MethodPost, "/chat/send", f.studentToken, map[string]interface{}{
		"receiverId": f.instructor.ID, "content": "second",
	}); w.Code != http.StatusOK {
		t.Fatalf("reply status = %d", w.Code)
	}

	// Both participants fetch the same thread.
	w, env := f.do(t, http.MethodGet, "/chat/conversation/"+f.instructor.ID.String(), f.studentToken, nil)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("get conversation status = %d, error = %q", w.Code, env.Error)
	}

	var payload struct {
		Conversation chat.Conversation `json:"conversation"`
		Messages     []chat.Message    `json:"messages"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("unmarshal conversation payload: %v", err)
	}
	if len(payload.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(payload.Messages))
	}
	if payload.Messages[0].Content != "first" || payload.Messages[1].Content != "second" {
		t.Errorf("history order = %q, %q", payload.Messages[0].Content, payload.Messages[1].Content)
	}
	if payload.Conversation.Participants.InstructorID != f.instructor.ID ||
		payload.Conversation.Participants.StudentID != f.student.ID {
		t.Error("conversation participants mismatch")
	}

	// The conversation list shows the thread with its last message.
	w, env = f.do(t, http.MethodGet, "/chat/conversations", f.instructorToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var conversations []chat.Conversation
	if err := json.Unmarshal(env.Data, &conversations); err != nil {
		t.Fatalf("unmarshal conversations: %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("conversations = %d, want 1", len(conversations))
	}
	if conversations[0].LastMessage == nil || conversations[0].LastMessage.Content != "second" {
		t.Error("conversation list missing last message projection")
	}
}

func TestMarkReadEndpoint(t *testing.T) {
	f := newRESTFixture(t)

	_, env := f.do(t, http.MethodPost, "/chat/send", f.instructorToken, map[string]interface{}{
		"receiverId": f.student.ID, "content": "read me",
	})
	var msg chat.Message
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatalf("unmarshal message: %v", err)
	}

	// Only the receiver may mark it read.
	w, _ := f.do(t, http.MethodPost, "/chat/mark-read", f.instructorToken, map[string]interface{}{
		"messageId": msg.ID,
	})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("mark-read by sender status = %d, want 401", w.Code)
	}

	w, env = f.do(t, http.MethodPost, "/chat/mark-read", f.studentToken, map[string]interface{}{
		"messageId": msg.ID,
	})
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("mark-read status = %d, error = %q", w.Code, env.Error)
	}

	// Unknown message id maps to 404.
	w, _ = f.do(t, http.MethodPost, "/chat/mark-read", f.studentToken, map[string]interface{}{
		"messageId": uuid.New(),
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("mark-read unknown id status = %d, want 404", w.Code)
	}
}

func TestUserEndpoints(t *testing.T) {
	f := newRESTFixture(t)

	w, env := f.do(t, http.MethodGet, "/users", f.studentToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list users status = %d", w.Code)
	}
	var users []user.User
	if err := json.Unmarshal(env.Data, &users); err != nil {
		t.Fatalf("unmarshal users: %v", err)
	}
	if len(users) != 2 {
		t.Errorf("users = %d, want 2", len(users))
	}
	for _, u := range users {
		if u.PasswordHash != "" {
			t.Error("password hash leaked in user listing")
		}
	}

	w, env = f.do(t, http.MethodGet, fmt.Sprintf("/users/%s", f.instructor.ID), f.studentToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get user status = %d", w.Code)
	}
	var u user.User
	if err := json.Unmarshal(env.Data, &u); err != nil {
		t.Fatalf("unmarshal user: %v", err)
	}
	if u.ID != f.instructor.ID || u.Role != user.RoleInstructor {
		t.Errorf("user = %+v", u)
	}

	w, _ = f.do(t, http.MethodGet, "/users/not-a-uuid", f.studentToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("get user with bad id status = %d, want 400", w.Code)
	}
}
