package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"classline/internal/services"
	"classline/internal/transport/httpdto"
)

type ChatHandler struct {
	service *services.MessageService
}

func NewChatHandler(service *services.MessageService) *ChatHandler {
	return &ChatHandler{service: service}
}

// Send persists a message over REST. The WebSocket path delivers
// realtime pushes; this endpoint only stores and returns the message.
func (h *ChatHandler) Send(c *gin.Context) {
	var req httpdto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request"))
		return
	}

	principal, ok := services.PrincipalFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized"))
		return
	}

	msg, err := h.service.Send(c.Request.Context(), principal, req.ReceiverID, req.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewMessageResponse(msg, "Message sent successfully"))
}

// GetConversation returns the conversation with the given participant
// and its full history. A conversation is created on first access so a
// thread can be opened before any message exists.
func (h *ChatHandler) GetConversation(c *gin.Context) {
	participantID, err := parseUUID(c.Param("participantId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid participant id"))
		return
	}

	principal, ok := services.PrincipalFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized"))
		return
	}

	conv, messages, err := h.service.GetConversation(c.Request.Context(), principal, participantID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ConversationResponse{
		Conversation: conv,
		Messages:     messages,
	}))
}

// GetConversations lists the caller's conversations, most recently
// active first.
func (h *ChatHandler) GetConversations(c *gin.Context) {
	principal, ok := services.PrincipalFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized"))
		return
	}

	conversations, err := h.service.GetUserConversations(c.Request.Context(), principal.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(conversations))
}

// MarkRead flips the read flag on a message the caller received.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	var req httpdto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request"))
		return
	}

	principal, ok := services.PrincipalFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized"))
		return
	}

	if _, err := h.service.MarkRead(c.Request.Context(), req.MessageID, principal.ID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, httpdto.NewMessageResponse[any](nil, "Message marked as read"))
}
