package permission

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// InvalidationMessage is published to trigger cache invalidation. Exactly one of the scopes below applies: narrowest
// non-nil combination wins.
type InvalidationMessage struct {
	GuildID int64  `json:"guild_id"`
	UserID  *int64 `json:"user_id,omitempty"`
	PageID  *int64 `json:"page_id,omitempty"`
}

// Publisher sends cache invalidation messages via Valkey pub/sub.
type Publisher struct {
	Client *redis.Client
}

// NewPublisher creates a new invalidation publisher.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{Client: client}
}

// InvalidateGuild publishes an invalidation for every cached permission in a guild, e.g. after a role's permission
// bitmask changes.
func (p *Publisher) InvalidateGuild(ctx context.Context, guildID int64) error {
	return p.publish(ctx, InvalidationMessage{GuildID: guildID})
}

// InvalidateUser publishes an invalidation for all of a user's cached permissions within a guild.
func (p *Publisher) InvalidateUser(ctx context.Context, guildID, userID int64) error {
	return p.publish(ctx, InvalidationMessage{GuildID: guildID, UserID: &userID})
}

// InvalidatePage publishes an invalidation for a specific user+page pair, e.g. after a page permission override
// changes.
func (p *Publisher) InvalidatePage(ctx context.Context, guildID, userID, pageID int64) error {
	return p.publish(ctx, InvalidationMessage{GuildID: guildID, UserID: &userID, PageID: &pageID})
}

func (p *Publisher) publish(ctx context.Context, msg InvalidationMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal invalidation: %w", err)
	}
	return p.Client.Publish(ctx, InvalidateChannel, data).Err()
}

// Subscriber listens for cache invalidation messages and removes cached entries.
type Subscriber struct {
	Cache  Cache
	Client *redis.Client
}

// NewSubscriber creates a new invalidation subscriber.
func NewSubscriber(cache Cache, client *redis.Client) *Subscriber {
	return &Subscriber{Cache: cache, Client: client}
}

// Run subscribes to the invalidation channel and processes messages until the context is cancelled. This method
// blocks and should be called in a goroutine.
func (s *Subscriber) Run(ctx context.Context) error {
	sub := s.Client.Subscribe(ctx, InvalidateChannel)
	defer func() { _ = sub.Close() }()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handleMessage(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, payload string) {
	var msg InvalidationMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		log.Warn().Err(err).Str("payload", payload).Msg("invalid invalidation message")
		return
	}

	var err error
	switch {
	case msg.UserID != nil && msg.PageID != nil:
		err = s.Cache.DeleteExact(ctx, msg.GuildID, *msg.UserID, *msg.PageID)
	case msg.UserID != nil:
		err = s.Cache.DeleteByUser(ctx, msg.GuildID, *msg.UserID)
	default:
		err = s.Cache.DeleteByGuild(ctx, msg.GuildID)
	}

	if err != nil {
		log.Warn().Err(err).Msg("cache invalidation failed")
	}
}
