package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/learnquest/learnquest/internal/domain"
)

// PubSubSink publishes notifications on the user's channel. It is a
// secondary sink: delivery is best effort and nothing is stored.
type PubSubSink struct {
	client *redis.Client
}

// NewPubSubSink creates a sink publishing through client.
func NewPubSubSink(client *redis.Client) *PubSubSink {
	return &PubSubSink{client: client}
}

// Deliver publishes n as JSON.
func (s *PubSubSink) Deliver(ctx context.Context, n *domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return s.client.Publish(ctx, NotificationChannel(n.UserID), data).Err()
}

// Subscribe listens on one user's channel. The caller closes the PubSub.
func (s *PubSubSink) Subscribe(ctx context.Context, userID int64) *redis.PubSub {
	return s.client.Subscribe(ctx, NotificationChannel(userID))
}
