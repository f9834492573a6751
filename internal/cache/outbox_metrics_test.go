package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tagflow/internal/cache"
	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/testsupport"
)

func TestOutbox_PushFailureIsReturnedAndCounted(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	keys := cache.NewKeyspace("tagflow")
	outbox := cache.NewOutbox(client, keys, nil)

	testsupport.AssertMetricDelta(t, "tagflow_outbox_published_total",
		map[string]string{"queue": cache.QueueContent, "status": "fail"}, 1, func() {
			err := outbox.UnlockContent(context.Background(), "cust-1", "advanced-modules")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "push unlock_content for cust-1")
		})

	testsupport.AssertMetricDelta(t, "tagflow_outbox_published_total",
		map[string]string{"queue": "analytics", "status": "fail"}, 1, func() {
			err := cache.NewAnalyticsStream(client, keys, 10).TrackStatusTransition(context.Background(), lifecycle.TransitionEvent{CustomerID: "cust-1"})
			assert.Error(t, err)
		})
}
