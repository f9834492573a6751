package cache

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

// unreachableClient fails fast on every command.
func unreachableClient(t *testing.T) *redis.Client {
	t.Helper()
	c := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestOutbox_Encode(t *testing.T) {
	t.Parallel()

	o := NewOutbox(unreachableClient(t), NewKeyspace("tagflow"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	o.now = func() time.Time { return time.Date(2026, 5, 4, 9, 0, 0, 0, time.FixedZone("BRT", -3*3600)) }

	raw, err := o.encode("issue_certificate", "cust-9", certificatePayload{Tag: ruleengine.TagMastery, Name: ruleengine.TagMastery.Name()})
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "issue_certificate", msg.Kind)
	assert.Equal(t, "cust-9", msg.CustomerID)
	assert.Equal(t, time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC), msg.EnqueuedAt)
	assert.JSONEq(t, `{"tag":"ST_003","name":"Mastery"}`, string(msg.Payload))
}

func TestAnalyticsStream_Fields(t *testing.T) {
	t.Parallel()

	fields := eventFields(lifecycle.TransitionEvent{
		CustomerID: "cust-2",
		FromTag:    ruleengine.TagProgressing,
		ToTag:      ruleengine.TagDecliningRisk,
		AppliedBy:  "ops@example.com",
		ElapsedMs:  86_400_000,
		OccurredAt: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, map[string]any{
		"customer_id": "cust-2",
		"from_tag":    "ST_002",
		"to_tag":      "ST_004",
		"applied_by":  "ops@example.com",
		"elapsed_ms":  "86400000",
		"occurred_at": "2026-05-04T09:00:00Z",
	}, fields)
}

func TestConstructors_PanicOnNilClient(t *testing.T) {
	t.Parallel()

	keys := NewKeyspace("tagflow")
	assert.Panics(t, func() { NewOutbox(nil, keys, nil) })
	assert.Panics(t, func() { NewAnalyticsStream(nil, keys, 10) })
	assert.Panics(t, func() { NewSweepCoordinator(nil, keys, "0-of-1") })
}
