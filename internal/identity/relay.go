package identity

import (
	"context"
	"fmt"

	"github.com/shopflow/shopflow-backend/pkg/logger"
)

// QueuePublisher sends an encoded event to the identity topic.
type QueuePublisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// Relay hands webhook events to the queue so the worker applies them. When
// publishing fails the event is applied inline through fallback instead.
type Relay struct {
	publisher QueuePublisher
	fallback  Handler
	logg      *logger.Logger
}

func NewRelay(publisher QueuePublisher, fallback Handler, logg *logger.Logger) (*Relay, error) {
	if publisher == nil {
		return nil, fmt.Errorf("queue publisher required")
	}
	if fallback == nil {
		return nil, fmt.Errorf("fallback handler required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Relay{publisher: publisher, fallback: fallback, logg: logg}, nil
}

func (r *Relay) Handle(ctx context.Context, evt Event) (Outcome, error) {
	if evt.Type == EventUnknown || evt.Type == "" {
		return OutcomeIgnored, nil
	}

	data, err := evt.Encode()
	if err != nil {
		return OutcomeDropped, fmt.Errorf("%w: encode: %v", ErrMalformedEvent, err)
	}
	attrs := map[string]string{attrEventType: evt.RawType}
	if evt.DeliveryID != "" {
		attrs[attrDeliveryID] = evt.DeliveryID
	}

	ctx = r.logg.WithEvent(ctx, evt.RawType, evt.DeliveryID)
	messageID, err := r.publisher.Publish(ctx, data, attrs)
	if err != nil {
		r.logg.Error(ctx, "identity event relay failed, applying inline", err)
		return r.fallback.Handle(ctx, evt)
	}

	r.logg.Info(r.logg.WithField(ctx, "message_id", messageID), "identity event queued")
	return OutcomeQueued, nil
}
