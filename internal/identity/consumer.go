package identity

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/shopflow/shopflow-backend/pkg/db"
	pkgerrors "github.com/shopflow/shopflow-backend/pkg/errors"
	"github.com/shopflow/shopflow-backend/pkg/logger"
)

const (
	attrEventType  = "event_type"
	attrDeliveryID = "delivery_id"
)

// Consumer drains queued identity events into a Handler.
type Consumer struct {
	handler      Handler
	subscription *pubsub.Subscriber
	logg         *logger.Logger
}

func NewConsumer(handler Handler, subscription *pubsub.Subscriber, logg *logger.Logger) (*Consumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("identity handler required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("identity subscription required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		handler:      handler,
		subscription: subscription,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg.ID, msg.Attributes, msg.Data)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": attrs[attrEventType],
	})

	deliveryID := attrs[attrDeliveryID]
	if deliveryID == "" {
		deliveryID = messageID
	}

	evt, err := DecodeEvent(data, SourceQueue, deliveryID)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode identity event", err)
		return processResult{ack: true}
	}
	if evt.RawType == "" && attrs[attrEventType] != "" {
		evt.RawType = attrs[attrEventType]
		evt.Type = ParseEventType(evt.RawType)
	}

	if _, err := c.handler.Handle(ctx, evt); err != nil {
		if shouldRedeliver(err) {
			return processResult{nack: true}
		}
		return processResult{ack: true}
	}
	return processResult{ack: true}
}

// shouldRedeliver reports whether a later attempt could succeed.
func shouldRedeliver(err error) bool {
	if errors.Is(err, ErrMissingIdentity) {
		return false
	}
	return pkgerrors.IsRetryable(err) || db.IsConnectionError(err)
}
