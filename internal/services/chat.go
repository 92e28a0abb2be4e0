package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"geminichat-backend/internal/logger"
	"geminichat-backend/internal/models"
	"geminichat-backend/internal/repository"
)

const (
	maxConversationTitleLen = 200
	maxMessageLen           = 5000
)

type conversationStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error)
	Create(ctx context.Context, c *models.Conversation) error
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error)
	Rename(ctx context.Context, id, userID uuid.UUID, title string, at time.Time) (*models.Conversation, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	InTx(ctx context.Context, fn func(tx repository.ConversationTx) error) error
}

// EventPublisher delivers conversation events to the owner's connected clients.
type EventPublisher interface {
	PublishConversationEvent(ctx context.Context, userID uuid.UUID, event models.ConversationEvent) error
}

type ChatService struct {
	store     conversationStore
	generator Generator
	events    EventPublisher
	log       *logger.Logger
	now       func() time.Time
}

func NewChatService(store conversationStore, generator Generator, events EventPublisher, log *logger.Logger) *ChatService {
	return &ChatService{
		store:     store,
		generator: generator,
		events:    events,
		log:       log.With("component", "chat"),
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// SendResult holds both persisted messages. Conversation is set only when the
// exchange changed the title.
type SendResult struct {
	UserMessage  *models.Message
	AIMessage    *models.Message
	Conversation *models.Conversation
}

func (s *ChatService) ListConversations(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *ChatService) CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = PlaceholderTitle
	}
	if utf8.RuneCountInString(title) > maxConversationTitleLen {
		return nil, fieldError("title", fmt.Sprintf("Title must be at most %d characters", maxConversationTitleLen))
	}

	c := &models.Conversation{UserID: userID, Title: title}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (s *ChatService) ListMessages(ctx context.Context, userID, conversationID uuid.UUID) ([]*models.Message, error) {
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, conversationID)
}

// SendMessage stores the user's message and the model's reply atomically. If the
// upstream call fails nothing from this exchange is kept.
func (s *ChatService) SendMessage(ctx context.Context, userID, conversationID uuid.UUID, content string) (*SendResult, error) {
	// A client hanging up must not abort the upstream call or the commit.
	ctx = context.WithoutCancel(ctx)

	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, fieldError("content", "Message cannot be empty")
	}
	if utf8.RuneCountInString(content) > maxMessageLen {
		return nil, fieldError("content", fmt.Sprintf("Message must be at most %d characters", maxMessageLen))
	}

	conv, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	history, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var result *SendResult
	err = s.store.InTx(ctx, func(tx repository.ConversationTx) error {
		userMsg := &models.Message{
			ID:             uuid.New(),
			ConversationID: conversationID,
			Content:        content,
			Role:           models.RoleUser,
			CreatedAt:      s.now(),
		}
		if err := tx.InsertMessage(ctx, userMsg); err != nil {
			return err
		}

		reply, err := s.generator.Generate(ctx, BuildPrompt(history, content))
		if err != nil {
			return &UpstreamError{Message: "Failed to get AI response", Err: err}
		}

		aiMsg := &models.Message{
			ID:             uuid.New(),
			ConversationID: conversationID,
			Content:        reply,
			Role:           models.RoleAssistant,
			CreatedAt:      s.now(),
		}
		if !aiMsg.CreatedAt.After(userMsg.CreatedAt) {
			aiMsg.CreatedAt = userMsg.CreatedAt.Add(time.Microsecond)
		}
		if err := tx.InsertMessage(ctx, aiMsg); err != nil {
			return err
		}

		// updated_at only; the title changes solely through ReplaceTitle below.
		if err := tx.TouchConversation(ctx, conversationID, aiMsg.CreatedAt); err != nil {
			return err
		}

		result = &SendResult{UserMessage: userMsg, AIMessage: aiMsg}

		if len(history) == 0 && conv.Title == PlaceholderTitle {
			title := s.generateTitle(ctx, conversationID, content)
			replaced, err := tx.ReplaceTitle(ctx, conversationID, PlaceholderTitle, title)
			if err != nil {
				return err
			}
			if replaced {
				updated := *conv
				updated.Title = title
				updated.UpdatedAt = aiMsg.CreatedAt
				updated.MessageCount = len(history) + 2
				result.Conversation = &updated
			}
		}
		return nil
	})
	if err != nil {
		var upstream *UpstreamError
		if errors.As(err, &upstream) {
			s.log.Error("upstream generation failed", "conversation_id", conversationID, "error", upstream.Err)
		}
		if errors.Is(err, repository.ErrConversationNotFound) {
			return nil, &NotFoundError{Message: "Conversation not found"}
		}
		return nil, err
	}

	if current, err := s.store.GetForUser(ctx, conversationID, userID); err == nil {
		s.publish(ctx, userID, models.ConversationEvent{
			Type:         models.EventConversationUpdated,
			ID:           conversationID,
			Conversation: current,
		})
	}
	return result, nil
}

// RenameConversation sets a user-chosen title; auto-titling never overrides it.
func (s *ChatService) RenameConversation(ctx context.Context, userID, conversationID uuid.UUID, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fieldError("title", "Title is required")
	}
	if utf8.RuneCountInString(title) > maxConversationTitleLen {
		return nil, fieldError("title", fmt.Sprintf("Title must be at most %d characters", maxConversationTitleLen))
	}

	conv, err := s.store.Rename(ctx, conversationID, userID, title, s.now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Conversation not found"}
		}
		return nil, err
	}

	s.publish(ctx, userID, models.ConversationEvent{Type: models.EventConversationUpdated, ID: conv.ID, Conversation: conv})
	return conv, nil
}

func (s *ChatService) DeleteConversation(ctx context.Context, userID, conversationID uuid.UUID) error {
	if err := s.store.Delete(ctx, conversationID, userID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &NotFoundError{Message: "Conversation not found"}
		}
		return err
	}

	s.publish(ctx, userID, models.ConversationEvent{Type: models.EventConversationDeleted, ID: conversationID})
	return nil
}

// BuildPrompt renders prior messages oldest first as "role: content" lines and
// appends the new user message once.
func BuildPrompt(history []*models.Message, content string) string {
	lines := make([]string, 0, len(history)+1)
	for _, m := range history {
		lines = append(lines, m.Role+": "+m.Content)
	}
	lines = append(lines, models.RoleUser+": "+content)
	return strings.Join(lines, "\n")
}

func (s *ChatService) ownedConversation(ctx context.Context, userID, conversationID uuid.UUID) (*models.Conversation, error) {
	conv, err := s.store.GetForUser(ctx, conversationID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &NotFoundError{Message: "Conversation not found"}
		}
		return nil, err
	}
	return conv, nil
}

// generateTitle asks the model for a title and falls back to the message's
// first words on any failure. It never returns an error.
func (s *ChatService) generateTitle(ctx context.Context, conversationID uuid.UUID, firstMessage string) string {
	raw, err := s.generator.Generate(ctx, titlePrompt(firstMessage))
	if err == nil {
		if title := cleanTitle(raw); title != "" {
			return title
		}
		err = errors.New("model returned an unusable title")
	}
	s.log.Warn("title generation failed, using fallback", "conversation_id", conversationID, "error", err)
	return fallbackTitle(firstMessage)
}

func (s *ChatService) publish(ctx context.Context, userID uuid.UUID, event models.ConversationEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishConversationEvent(ctx, userID, event); err != nil {
		s.log.Warn("failed to publish conversation event", "conversation_id", event.ID, "type", event.Type, "error", err)
	}
}
