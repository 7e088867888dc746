// Package redispub announces settled board documents on a Redis channel.
package redispub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hylla/kollage/internal/app"
)

// DefaultChannel is used when no channel is configured.
const DefaultChannel = "kollage:boards"

// Message is the JSON payload published for each settled change.
type Message struct {
	BoardID  string          `json:"board_id"`
	Tiles    int             `json:"tiles"`
	At       time.Time       `json:"at"`
	Document json.RawMessage `json:"document"`
}

// client is the subset of *redis.Client used by Publisher.
type client interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Close() error
}

// Publisher implements app.ChangeSink over Redis pub/sub.
type Publisher struct {
	client  client
	channel string
}

// Config configures a Redis publisher.
type Config struct {
	Addr    string
	Channel string
}

// Dial connects to Redis and verifies the connection.
func Dial(ctx context.Context, cfg Config) (*Publisher, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return newPublisher(rdb, cfg.Channel), nil
}

func newPublisher(c client, channel string) *Publisher {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &Publisher{client: c, channel: channel}
}

// Channel returns the channel messages are published on.
func (p *Publisher) Channel() string {
	return p.channel
}

// Publish sends one change notification.
func (p *Publisher) Publish(ctx context.Context, note app.ChangeNotification) error {
	payload, err := json.Marshal(Message{
		BoardID:  note.BoardID,
		Tiles:    note.Tiles,
		At:       note.At.UTC(),
		Document: json.RawMessage(note.Document),
	})
	if err != nil {
		return fmt.Errorf("encode redis message: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish board %s: %w", note.BoardID, err)
	}
	return nil
}

// Close closes the Redis connection.
func (p *Publisher) Close() error {
	return p.client.Close()
}
