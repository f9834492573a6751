package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/observability"
)

const streamQueueLabel = "analytics"

// AnalyticsStream appends transition events to a capped Redis stream.
type AnalyticsStream struct {
	client redis.Cmdable
	key    string
	maxLen int64
}

var _ lifecycle.AnalyticsSink = (*AnalyticsStream)(nil)

// NewAnalyticsStream trims the stream to roughly maxLen entries on every
// append; maxLen <= 0 disables trimming.
func NewAnalyticsStream(client redis.Cmdable, keys Keyspace, maxLen int64) *AnalyticsStream {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	return &AnalyticsStream{client: client, key: keys.TransitionStream(), maxLen: maxLen}
}

func (a *AnalyticsStream) TrackStatusTransition(ctx context.Context, ev lifecycle.TransitionEvent) error {
	args := &redis.XAddArgs{
		Stream: a.key,
		Values: eventFields(ev),
	}
	if a.maxLen > 0 {
		args.MaxLen = a.maxLen
		args.Approx = true
	}

	if err := a.client.XAdd(ctx, args).Err(); err != nil {
		observability.OutboxPublishedTotal.WithLabelValues(streamQueueLabel, "fail").Inc()
		return fmt.Errorf("track transition for %s: %w", ev.CustomerID, err)
	}
	observability.OutboxPublishedTotal.WithLabelValues(streamQueueLabel, "success").Inc()
	return nil
}

// eventFields flattens ev into stream fields; streams store strings only.
func eventFields(ev lifecycle.TransitionEvent) map[string]any {
	return map[string]any{
		"customer_id": ev.CustomerID,
		"from_tag":    string(ev.FromTag),
		"to_tag":      string(ev.ToTag),
		"applied_by":  ev.AppliedBy,
		"elapsed_ms":  strconv.FormatInt(ev.ElapsedMs, 10),
		"occurred_at": ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}
