package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"geminichat-backend/internal/models"
)

// ConversationTx is the write surface available inside a send transaction.
// Writes against a conversation that no longer exists fail with ErrConversationNotFound.
type ConversationTx interface {
	InsertMessage(ctx context.Context, m *models.Message) error
	TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error
	// ReplaceTitle sets the title to "to" only while it still equals "from".
	ReplaceTitle(ctx context.Context, id uuid.UUID, from, to string) (bool, error)
}

type ConversationRepo struct {
	pool *pgxpool.Pool
}

func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

const conversationSelect = `
	SELECT c.id, c.user_id, c.title, c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id) AS message_count
	FROM conversations c`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	c := &models.Conversation{}
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt, &c.MessageCount)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ConversationRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Conversation, error) {
	rows, err := r.pool.Query(ctx, conversationSelect+` WHERE c.user_id = $1 ORDER BY c.updated_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conversations := make([]*models.Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (r *ConversationRepo) Create(ctx context.Context, c *models.Conversation) error {
	query := `
		INSERT INTO conversations (id, user_id, title)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at`

	c.ID = uuid.New()
	c.MessageCount = 0
	return r.pool.QueryRow(ctx, query, c.ID, c.UserID, c.Title).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// GetForUser loads a conversation only if userID owns it; otherwise pgx.ErrNoRows.
func (r *ConversationRepo) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.Conversation, error) {
	return scanConversation(r.pool.QueryRow(ctx, conversationSelect+` WHERE c.id = $1 AND c.user_id = $2`, id, userID))
}

// ListMessages returns the conversation's messages oldest first.
func (r *ConversationRepo) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*models.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, content, role, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m := &models.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Content, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *ConversationRepo) Rename(ctx context.Context, id, userID uuid.UUID, title string, at time.Time) (*models.Conversation, error) {
	tag, err := r.pool.Exec(ctx,
		"UPDATE conversations SET title = $1, updated_at = $2 WHERE id = $3 AND user_id = $4",
		title, at, id, userID,
	)
	if err != nil {
		return nil, err
	}
	if tag.RowsAffected() == 0 {
		return nil, pgx.ErrNoRows
	}
	return r.GetForUser(ctx, id, userID)
}

// Delete removes a conversation owned by userID and all of its messages in one
// transaction. Returns pgx.ErrNoRows when the conversation is missing or foreign.
func (r *ConversationRepo) Delete(ctx context.Context, id, userID uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var owned uuid.UUID
		err := tx.QueryRow(ctx,
			"SELECT id FROM conversations WHERE id = $1 AND user_id = $2 FOR UPDATE", id, userID,
		).Scan(&owned)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM messages WHERE conversation_id = $1", id); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if _, err := tx.Exec(ctx, "DELETE FROM conversations WHERE id = $1", id); err != nil {
			return fmt.Errorf("delete conversation: %w", err)
		}
		return nil
	})
}

// InTx runs fn in a transaction that commits only when fn returns nil.
func (r *ConversationRepo) InTx(ctx context.Context, fn func(tx ConversationTx) error) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&conversationTx{tx: tx})
	})
}

type conversationTx struct {
	tx pgx.Tx
}

func (t *conversationTx) InsertMessage(ctx context.Context, m *models.Message) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, content, role, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.ConversationID, m.Content, m.Role, m.CreatedAt,
	)
	if isForeignKeyViolation(err) {
		return ErrConversationNotFound
	}
	if err != nil {
		return fmt.Errorf("insert %s message: %w", m.Role, err)
	}
	return nil
}

func (t *conversationTx) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := t.tx.Exec(ctx, "UPDATE conversations SET updated_at = $1 WHERE id = $2", at, id)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (t *conversationTx) ReplaceTitle(ctx context.Context, id uuid.UUID, from, to string) (bool, error) {
	tag, err := t.tx.Exec(ctx,
		"UPDATE conversations SET title = $1 WHERE id = $2 AND title = $3",
		to, id, from,
	)
	if err != nil {
		return false, fmt.Errorf("set conversation title: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
