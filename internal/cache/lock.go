package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still holds our token, so an
// instance whose lock expired cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const dateLayout = "2006-01-02"

// SweepCoordinator keeps one sweep per shard per day across instances.
type SweepCoordinator struct {
	client  redis.Cmdable
	lockKey string
	runKey  string
}

func NewSweepCoordinator(client redis.Cmdable, keys Keyspace, shard string) *SweepCoordinator {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	return &SweepCoordinator{
		client:  client,
		lockKey: keys.SweepLock(shard),
		runKey:  keys.SweepLastRun(shard),
	}
}

// Acquire tries to take the lock for ttl. It returns a release func when the
// lock was taken and ok=false when another instance holds it.
func (c *SweepCoordinator) Acquire(ctx context.Context, ttl time.Duration) (release func(context.Context) error, ok bool, err error) {
	token := uuid.NewString()
	ok, err = c.client.SetNX(ctx, c.lockKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire sweep lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, c.client, []string{c.lockKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release sweep lock: %w", err)
		}
		return nil
	}
	return release, true, nil
}

// LastRun returns the UTC date of the last completed sweep, or the zero time
// if none was recorded.
func (c *SweepCoordinator) LastRun(ctx context.Context) (time.Time, error) {
	v, err := c.client.Get(ctx, c.runKey).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read last sweep date: %w", err)
	}
	day, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last sweep date %q: %w", v, err)
	}
	return day, nil
}

// MarkRun records day as swept. The marker outlives the day so a restart
// does not sweep twice.
func (c *SweepCoordinator) MarkRun(ctx context.Context, day time.Time) error {
	if err := c.client.Set(ctx, c.runKey, day.UTC().Format(dateLayout), 72*time.Hour).Err(); err != nil {
		return fmt.Errorf("record sweep date: %w", err)
	}
	return nil
}
