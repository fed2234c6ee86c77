// Package events carries the service's Redis side effects: event fan-out,
// per-cadence batch locks and the per-alert seen-set.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Publisher publishes JSON payloads on Redis channels.
type Publisher struct {
	rdb *redis.Client
}

// NewPublisher returns a Publisher.
func NewPublisher(rdb *redis.Client) *Publisher { return &Publisher{rdb: rdb} }

// Publish marshals payload to JSON and publishes it on channel.
func (p *Publisher) Publish(ctx context.Context, channel string, payload any) error {
	msg, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", channel, err)
	}
	if err := p.rdb.Publish(ctx, channel, msg).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// releaseScript deletes the lock only when it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker takes SET NX PX locks.
type Locker struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewLocker returns a Locker.
func NewLocker(rdb *redis.Client, log *zap.Logger) *Locker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Locker{rdb: rdb, log: log}
}

// Acquire tries to take key for ttl. ok is false when someone else holds it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// The batch context may already be cancelled; release regardless.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			l.log.Warn("release lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}

// SeenStore keeps one Redis set of surfaced entry ids per alert. Each Mark
// refreshes the set's TTL.
type SeenStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewSeenStore returns a SeenStore. A ttl of zero keeps sets forever.
func NewSeenStore(rdb *redis.Client, ttl time.Duration) *SeenStore {
	return &SeenStore{rdb: rdb, ttl: ttl}
}

// SeenKey is the Redis key of an alert's seen-set.
func SeenKey(alertID string) string { return "alert:seen:" + alertID }

// Unseen returns the ids that are not yet in the alert's seen-set, in input order.
func (s *SeenStore) Unseen(ctx context.Context, alertID string, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	flags, err := s.rdb.SMIsMember(ctx, SeenKey(alertID), members...).Result()
	if err != nil {
		return nil, fmt.Errorf("seen-set lookup: %w", err)
	}
	return unseenFrom(ids, flags), nil
}

// Mark adds ids to the alert's seen-set.
func (s *SeenStore) Mark(ctx context.Context, alertID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	key := SeenKey(alertID)
	members := make([]any, len(ids))
	for i, id := range ids {
		members[i] = id
	}
	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("seen-set mark: %w", err)
	}
	return nil
}

func unseenFrom(ids []string, seen []bool) []string {
	out := make([]string, 0, len(ids))
	for i, id := range ids {
		if i >= len(seen) || !seen[i] {
			out = append(out, id)
		}
	}
	return out
}
