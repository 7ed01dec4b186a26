package governance

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// InvalidationChannel is the pub/sub channel carrying rule change events.
const InvalidationChannel = "governance:rules:invalidate"

// RedisInvalidator broadcasts rule changes to peer instances and applies
// the changes they broadcast to the local cache.
type RedisInvalidator struct {
	client *redis.Client
	cache  *RuleCache
	origin string
	logger zerolog.Logger
}

// NewRedisInvalidator connects to the Redis server at url.
func NewRedisInvalidator(url string, cache *RuleCache, logger zerolog.Logger) (*RedisInvalidator, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisInvalidator{
		client: redis.NewClient(opts),
		cache:  cache,
		origin: uuid.New().String(),
		logger: logger,
	}, nil
}

// RuleChanged publishes a change event for ruleID.
func (r *RedisInvalidator) RuleChanged(ctx context.Context, ruleID uuid.UUID) error {
	if err := r.client.Publish(ctx, InvalidationChannel, encodeInvalidation(r.origin, ruleID)).Err(); err != nil {
		return fmt.Errorf("publish rule invalidation: %w", err)
	}
	return nil
}

// Run subscribes to change events until ctx is done.
func (r *RedisInvalidator) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, InvalidationChannel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", InvalidationChannel, err)
	}
	r.logger.Info().Str("channel", InvalidationChannel).Msg("listening for rule changes")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			origin, ruleID, err := decodeInvalidation(msg.Payload)
			if err != nil {
				r.logger.Warn().Err(err).Msg("ignoring malformed rule invalidation")
				continue
			}
			if origin == r.origin {
				continue
			}
			r.cache.Invalidate()
			r.logger.Debug().Str("rule_id", ruleID.String()).Msg("rule cache invalidated by peer")
		}
	}
}

// Close closes the Redis client.
func (r *RedisInvalidator) Close() error {
	return r.client.Close()
}

func encodeInvalidation(origin string, ruleID uuid.UUID) string {
	return origin + "|" + ruleID.String()
}

func decodeInvalidation(payload string) (string, uuid.UUID, error) {
	origin, id, ok := strings.Cut(payload, "|")
	if !ok || origin == "" {
		return "", uuid.Nil, fmt.Errorf("invalid payload %q", payload)
	}
	ruleID, err := uuid.Parse(id)
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("invalid rule id: %w", err)
	}
	return origin, ruleID, nil
}
