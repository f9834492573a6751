package cache

import "strings"

// Queue names of the outbox lists.
const (
	QueueNotifications = "notifications"
	QueueContent       = "content_unlocks"
	QueueCertificates  = "certificates"
	QueueCampaigns     = "campaigns"
)

// Keyspace builds every Redis key under one prefix so several deployments
// can share a server.
type Keyspace struct {
	prefix string
}

func NewKeyspace(prefix string) Keyspace {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "tagflow"
	}
	return Keyspace{prefix: prefix}
}

func (k Keyspace) join(parts ...string) string {
	return k.prefix + ":" + strings.Join(parts, ":")
}

// Queue is the outbox list for name, e.g. "tagflow:queue:notifications".
func (k Keyspace) Queue(name string) string { return k.join("queue", name) }

// TransitionStream is the analytics stream.
func (k Keyspace) TransitionStream() string { return k.join("stream", "transitions") }

// SweepLock is held by the instance running a sweep for shard.
func (k Keyspace) SweepLock(shard string) string { return k.join("sweep", shard, "lock") }

// SweepLastRun stores the UTC date of the last completed sweep for shard.
func (k Keyspace) SweepLastRun(shard string) string { return k.join("sweep", shard, "last_run") }
