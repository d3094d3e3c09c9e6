package billing

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventLog remembers deliveries that were fully processed so redeliveries
// can be acknowledged without dispatch. It is an optimisation only; every
// handler stays idempotent without it.
type EventLog interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// NopEventLog never remembers anything.
type NopEventLog struct{}

func (NopEventLog) Seen(context.Context, string) (bool, error) { return false, nil }
func (NopEventLog) Mark(context.Context, string) error         { return nil }

const (
	eventLogPrefix     = "substrack:webhook:event:"
	DefaultEventLogTTL = 72 * time.Hour
)

// RedisEventLog stores processed event ids with a TTL.
type RedisEventLog struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisEventLog uses DefaultEventLogTTL when ttl is not positive.
func NewRedisEventLog(client redis.UniversalClient, ttl time.Duration) *RedisEventLog {
	if ttl <= 0 {
		ttl = DefaultEventLogTTL
	}
	return &RedisEventLog{client: client, ttl: ttl}
}

func (l *RedisEventLog) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := l.client.Exists(ctx, eventLogPrefix+eventID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *RedisEventLog) Mark(ctx context.Context, eventID string) error {
	return l.client.SetNX(ctx, eventLogPrefix+eventID, time.Now().UTC().Unix(), l.ttl).Err()
}
