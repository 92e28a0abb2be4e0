package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/middleware"
	"geminichat-backend/internal/models"
	"geminichat-backend/internal/services"
)

type chatService interface {
	ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error)
	CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*models.Conversation, error)
	ListMessages(ctx context.Context, userID, conversationID uuid.UUID) ([]*models.Message, error)
	SendMessage(ctx context.Context, userID, conversationID uuid.UUID, content string) (*services.SendResult, error)
	RenameConversation(ctx context.Context, userID, conversationID uuid.UUID, title string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error
}

type ChatHandler struct {
	chatService chatService
	log         *logger.Logger
}

func NewChatHandler(chatService chatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{chatService: chatService, log: log}
}

func (h *ChatHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.chatService.ListConversations(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"conversations": conversations})
}

// CreateConversation accepts an empty body; the title is optional.
func (h *ChatHandler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req models.CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	conv, err := h.chatService.CreateConversation(r.Context(), middleware.GetUserID(r.Context()), req.Title)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":      "Conversation created successfully",
		"conversation": conv,
	})
}

func (h *ChatHandler) RenameConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	var req models.RenameConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	conv, err := h.chatService.RenameConversation(r.Context(), middleware.GetUserID(r.Context()), conversationID, req.Title)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"conversation": conv})
}

func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	messages, err := h.chatService.ListMessages(r.Context(), middleware.GetUserID(r.Context()), conversationID)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	var req models.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	result, err := h.chatService.SendMessage(r.Context(), middleware.GetUserID(r.Context()), conversationID, req.Content)
	if err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, models.SendMessageResponse{
		UserMessage:         result.UserMessage,
		AIResponse:          result.AIMessage,
		ConversationUpdated: result.Conversation,
	})
}

func (h *ChatHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := conversationIDParam(w, r)
	if !ok {
		return
	}

	if err := h.chatService.DeleteConversation(r.Context(), middleware.GetUserID(r.Context()), conversationID); err != nil {
		handleServiceError(w, r, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Conversation deleted successfully"})
}

// conversationIDParam answers 404 for ids that are not UUIDs, the same as for unknown ones.
func conversationIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Conversation not found", r))
		return uuid.Nil, false
	}
	return id, true
}
