package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"geminichat-backend/internal/models"
)

func channelFor(userID uuid.UUID) string {
	return "user_updates:" + userID.String()
}

// Publisher fans conversation events out through Redis so that every hub
// subscribed for the user delivers them.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) PublishConversationEvent(ctx context.Context, userID uuid.UUID, event models.ConversationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal conversation event: %w", err)
	}
	if err := p.client.Publish(ctx, channelFor(userID), data).Err(); err != nil {
		return fmt.Errorf("publish conversation event: %w", err)
	}
	return nil
}
