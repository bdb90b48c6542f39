package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/learnsync/internal/domain/shared"
	"github.com/alem-hub/learnsync/pkg/logger"
)

// ChangeMessage is what travels on a user's change channel.
type ChangeMessage struct {
	shared.EventEnvelope
	Origin string `json:"origin"`
}

// DecodeChangeMessage parses a change channel payload.
func DecodeChangeMessage(payload string) (ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return ChangeMessage{}, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}
	if msg.AggregateID == "" || msg.Type == "" {
		return ChangeMessage{}, fmt.Errorf("%w: message without type or user", ErrCacheSerialization)
	}
	return msg, nil
}

type publisher interface {
	Publish(ctx context.Context, channel string, message any) error
}

// ChangeFeed publishes domain events on per-user channels so other
// instances know a snapshot changed. It implements shared.EventPublisher.
type ChangeFeed struct {
	pub       publisher
	subscribe func(ctx context.Context, channels ...string) *redis.PubSub
	origin    string
	timeout   time.Duration
	log       *logger.Logger
}

var _ shared.EventPublisher = (*ChangeFeed)(nil)

// NewChangeFeed creates a ChangeFeed over cache. Every feed gets its own
// origin id so it can skip its own messages when listening.
func NewChangeFeed(cache *Cache, log *logger.Logger) *ChangeFeed {
	if log == nil {
		log = logger.Nop()
	}
	return &ChangeFeed{
		pub:       cache,
		subscribe: cache.Subscribe,
		origin:    uuid.NewString(),
		timeout:   3 * time.Second,
		log:       log.With(logger.Component("change_feed")),
	}
}

// Origin returns the id stamped on messages published by this feed.
func (f *ChangeFeed) Origin() string {
	return f.origin
}

// Publish implements shared.EventPublisher.
func (f *ChangeFeed) Publish(event shared.Event) error {
	env, err := shared.NewEnvelope(uuid.NewString(), event)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	msg := ChangeMessage{EventEnvelope: env, Origin: f.origin}
	if err := f.pub.Publish(ctx, ChangesChannel(event.AggregateID()), msg); err != nil {
		return fmt.Errorf("publish %s: %w", event.EventType(), err)
	}

	f.log.Debug("change published",
		logger.UserID(event.AggregateID()),
		logger.String("event_type", string(event.EventType())),
	)
	return nil
}

// Listen delivers messages from other instances on the user's channel to
// handler until ctx is done. Undecodable messages and handler errors are
// logged and skipped.
func (f *ChangeFeed) Listen(ctx context.Context, userID string, handler func(context.Context, ChangeMessage) error) error {
	ps := f.subscribe(ctx, ChangesChannel(userID))
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", ChangesChannel(userID), err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			f.dispatch(ctx, m.Payload, handler)
		}
	}
}

func (f *ChangeFeed) dispatch(ctx context.Context, payload string, handler func(context.Context, ChangeMessage) error) {
	msg, err := DecodeChangeMessage(payload)
	if err != nil {
		f.log.Warn("skipping undecodable change message", logger.Err(err))
		return
	}
	if msg.Origin == f.origin {
		return
	}

	if err := handler(ctx, msg); err != nil {
		f.log.Error("change handler failed",
			logger.UserID(msg.AggregateID),
			logger.String("event_type", string(msg.Type)),
			logger.Err(err),
		)
	}
}
