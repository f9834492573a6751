package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/tagflow/internal/lifecycle"
	"github.com/rafaeljc/tagflow/internal/observability"
	"github.com/rafaeljc/tagflow/internal/ruleengine"
)

// Message is the envelope pushed onto every outbox list. Consumers BRPOP
// from the tail, so delivery order is FIFO per queue.
type Message struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	CustomerID string          `json:"customer_id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

type contentPayload struct {
	ContentKey string `json:"content_key"`
}

type certificatePayload struct {
	Tag  ruleengine.StatusTag `json:"tag"`
	Name string               `json:"name"`
}

type campaignPayload struct {
	Campaign string `json:"campaign"`
}

// Outbox hands tag-entry side effects to downstream workers through durable
// Redis lists. It implements every action port of the lifecycle service.
type Outbox struct {
	client redis.Cmdable
	keys   Keyspace
	logger *slog.Logger
	now    func() time.Time
}

var (
	_ lifecycle.Notifier          = (*Outbox)(nil)
	_ lifecycle.ContentUnlocker   = (*Outbox)(nil)
	_ lifecycle.CertificateIssuer = (*Outbox)(nil)
	_ lifecycle.CampaignStarter   = (*Outbox)(nil)
)

func NewOutbox(client redis.Cmdable, keys Keyspace, logger *slog.Logger) *Outbox {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Outbox{client: client, keys: keys, logger: logger, now: time.Now}
}

func (o *Outbox) SendNotification(ctx context.Context, n lifecycle.Notification) error {
	return o.push(ctx, QueueNotifications, "notification", n.CustomerID, n)
}

func (o *Outbox) UnlockContent(ctx context.Context, customerID, contentKey string) error {
	return o.push(ctx, QueueContent, "unlock_content", customerID, contentPayload{ContentKey: contentKey})
}

func (o *Outbox) IssueCertificate(ctx context.Context, customerID string, tag ruleengine.StatusTag) error {
	return o.push(ctx, QueueCertificates, "issue_certificate", customerID, certificatePayload{Tag: tag, Name: tag.Name()})
}

func (o *Outbox) StartCampaign(ctx context.Context, customerID, campaign string) error {
	return o.push(ctx, QueueCampaigns, "start_campaign", customerID, campaignPayload{Campaign: campaign})
}

func (o *Outbox) push(ctx context.Context, queue, kind, customerID string, payload any) error {
	msg, err := o.encode(kind, customerID, payload)
	if err != nil {
		observability.OutboxPublishedTotal.WithLabelValues(queue, "fail").Inc()
		return err
	}

	if err := o.client.LPush(ctx, o.keys.Queue(queue), msg).Err(); err != nil {
		observability.OutboxPublishedTotal.WithLabelValues(queue, "fail").Inc()
		return fmt.Errorf("push %s for %s: %w", kind, customerID, err)
	}

	observability.OutboxPublishedTotal.WithLabelValues(queue, "success").Inc()
	o.logger.Debug("outbox message queued",
		slog.String("queue", queue),
		slog.String("customer_id", customerID),
	)
	return nil
}

func (o *Outbox) encode(kind, customerID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return json.Marshal(Message{
		ID:         uuid.NewString(),
		Kind:       kind,
		CustomerID: customerID,
		Payload:    raw,
		EnqueuedAt: o.now().UTC(),
	})
}
