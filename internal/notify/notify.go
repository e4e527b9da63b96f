package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Severity of a user-facing notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notification is the toast payload rendered by the client.
type Notification struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// Notifier is the capability workflows use to surface outcomes. It is
// injected explicitly so workflows stay testable without a UI runtime.
type Notifier interface {
	Notify(ctx context.Context, userID uint, n Notification) error
}

// ChannelFor returns the per-user pub/sub channel the websocket handler
// subscribes to.
func ChannelFor(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}

type redisMessage struct {
	Type string `json:"type"`
	Notification
}

// RedisNotifier publishes notifications to the per-user redis channel that
// feeds the websocket stream.
type RedisNotifier struct {
	client redis.UniversalClient
}

// NewRedisNotifier wraps a redis client as a Notifier.
func NewRedisNotifier(client redis.UniversalClient) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Notify implements Notifier. Delivery is fire-and-forget from the
// workflow's perspective; a publish failure is reported but never blocks
// the triggering operation's outcome.
func (r *RedisNotifier) Notify(ctx context.Context, userID uint, n Notification) error {
	payload, err := json.Marshal(redisMessage{Type: "toast", Notification: n})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := r.client.Publish(ctx, ChannelFor(userID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
