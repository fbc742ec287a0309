package redisbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alejandrodnm/oods/internal/domain"
	"github.com/alejandrodnm/oods/internal/ports"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel es el canal Pub/Sub si la config no define otro.
const DefaultChannel = "oods:events"

// envelope es lo que viaja por el canal: el tipo de evento y su payload.
type envelope struct {
	Kind     domain.EventKind `json:"kind"`
	LaunchID string           `json:"launch_id"`
	Payload  domain.Event     `json:"payload"`
}

// Bus implementa ports.Notifier publicando cada evento como JSON.
type Bus struct {
	rdb     *redis.Client
	channel string
}

var _ ports.Notifier = (*Bus)(nil)

func NewBus(c *Client, channel string) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bus{rdb: c.rdb, channel: channel}
}

// Publish serializa ev y lo publica. Sin suscriptores el mensaje se pierde;
// las notificaciones son informativas.
func (b *Bus) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return fmt.Errorf("redisbus.Publish: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redisbus.Publish: %s: %w", b.channel, err)
	}
	return nil
}

// Encode produce el JSON que Publish envía.
func Encode(ev domain.Event) ([]byte, error) {
	b, err := json.Marshal(envelope{Kind: ev.Kind(), LaunchID: ev.Launch(), Payload: ev})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.Kind(), err)
	}
	return b, nil
}
