package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizlive/internal/telemetry"
)

// Notification is the wire envelope for every outbound protocol event.
type Notification struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type BroadcasterConfig struct {
	Redis  redis.UniversalClient
	Prefix string
}

// Broadcaster implements the router's group abstraction on redis pub/sub:
// one channel per session group, one channel per connection. Every gateway
// instance subscribed to a channel forwards the frames to its local
// websockets, so broadcasts keep working with more than one process.
type Broadcaster struct {
	redis  redis.UniversalClient
	prefix string
}

func NewBroadcaster(c BroadcasterConfig) *Broadcaster {
	return &Broadcaster{
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

// Publish emits the event to the whole session group. Fire-and-forget:
// there is no delivery acknowledgment and no retry.
func (b *Broadcaster) Publish(ctx context.Context, quizCode, eventName string, data any) error {
	return b.publish(ctx, b.GroupChannel(quizCode), eventName, data)
}

// PublishTo emits the event to a single connection.
func (b *Broadcaster) PublishTo(ctx context.Context, connectionID, eventName string, data any) error {
	return b.publish(ctx, b.ConnChannel(connectionID), eventName, data)
}

func (b *Broadcaster) publish(ctx context.Context, channel, eventName string, data any) error {
	payload, err := json.Marshal(Notification{Event: eventName, Data: data})
	if err != nil {
		return fmt.Errorf("broadcast: marshal %s: %v", eventName, err)
	}

	telemetry.BroadcastsPublished.WithLabelValues(eventName).Inc()

	return b.redis.Publish(ctx, channel, payload).Err()
}

// GroupChannel names the pub/sub channel shared by every connection of a
// session.
func (b *Broadcaster) GroupChannel(quizCode string) string {
	return fmt.Sprintf("%s:quiz:%s", b.prefix, quizCode)
}

// ConnChannel names the private channel of one connection.
func (b *Broadcaster) ConnChannel(connectionID string) string {
	return fmt.Sprintf("%s:conn:%s", b.prefix, connectionID)
}
