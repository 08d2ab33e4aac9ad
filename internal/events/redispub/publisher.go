// Package redispub mirrors appended session events to a per-session Redis
// Pub/Sub channel, for live subscriber streams (e.g. an SSE transport, out
// of scope here) to fan out from. A single channel per session is all the
// spec's event model needs — no consumer groups, no replay, no at-least-
// once redelivery — so this talks to go-redis directly rather than
// layering the teacher's goa.design/pulse streaming library on top (see
// DESIGN.md's dropped-dependency note).
package redispub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flowcraft/chatagent/internal/events"
)

// ChannelPrefix namespaces session event channels from any other Redis
// Pub/Sub traffic on the same instance.
const ChannelPrefix = "chatagent.events."

// Publisher mirrors events.Event values to Redis Pub/Sub, one channel per
// session id.
type Publisher struct {
	client *redis.Client
}

// New constructs a Publisher over an existing *redis.Client.
func New(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// Channel returns the Pub/Sub channel name for sessionID.
func Channel(sessionID string) string {
	return ChannelPrefix + sessionID
}

// Publish JSON-encodes event and publishes it to its session's channel.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redispub: marshal event: %w", err)
	}
	return p.client.Publish(ctx, Channel(event.SessionID), b).Err()
}

// Subscribe returns a *redis.PubSub a transport can range over to receive
// live events for sessionID. Callers are responsible for closing it.
func Subscribe(ctx context.Context, client *redis.Client, sessionID string) *redis.PubSub {
	return client.Subscribe(ctx, Channel(sessionID))
}
