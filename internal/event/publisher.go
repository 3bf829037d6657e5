package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"votecast/internal/broker"
	"votecast/internal/metrics"
)

// ErrPublish marks a topic append failure. By the time it surfaces the store
// write has already committed; callers choose the degraded-mode policy
// instead of rolling anything back.
var ErrPublish = errors.New("event publish failed")

type Publisher struct {
	broker broker.Broker
	topic  string
	logger *slog.Logger
}

func NewPublisher(b broker.Broker, topic string, logger *slog.Logger) *Publisher {
	return &Publisher{broker: b, topic: topic, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, ev Envelope) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}

	key := strconv.FormatInt(ev.PollID, 10)
	if err := p.broker.Publish(ctx, p.topic, key, data); err != nil {
		metrics.IncPublishFailure()
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}

	metrics.IncEventPublished(string(ev.Type))
	p.logger.Info("event published",
		"topic", p.topic,
		"type", ev.Type,
		"event_id", ev.EventID,
		"poll_id", ev.PollID,
	)
	return nil
}
