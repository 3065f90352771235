package identity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/shopflow/shopflow-backend/pkg/logger"
)

func TestRelayPublishesKnownEvents(t *testing.T) {
	publisher := &stubPublisher{}
	fallback := &recordingHandler{}
	relay := newTestRelay(t, publisher, fallback)

	evt := Event{Type: EventCreated, RawType: "user.created", DeliveryID: "msg_1", Data: json.RawMessage(`{"id":"u1"}`)}
	outcome, err := relay.Handle(context.Background(), evt)
	if err != nil || outcome != OutcomeQueued {
		t.Fatalf("expected queued, got %s (%v)", outcome, err)
	}
	if len(fallback.events) != 0 {
		t.Fatal("fallback must not run after a successful publish")
	}
	if publisher.attrs[attrDeliveryID] != "msg_1" || publisher.attrs[attrEventType] != "user.created" {
		t.Fatalf("unexpected attributes %v", publisher.attrs)
	}

	decoded, err := DecodeEvent(publisher.data, SourceQueue, "")
	if err != nil {
		t.Fatalf("published body should decode: %v", err)
	}
	if decoded.Type != EventCreated || decoded.DeliveryID != "msg_1" {
		t.Fatalf("unexpected decoded event %+v", decoded)
	}
}

func TestRelayFallsBackWhenPublishFails(t *testing.T) {
	publisher := &stubPublisher{err: errors.New("topic unavailable")}
	fallback := &recordingHandler{}
	relay := newTestRelay(t, publisher, fallback)

	evt := Event{Type: EventDeleted, Data: json.RawMessage(`{"id":"u1"}`)}
	outcome, err := relay.Handle(context.Background(), evt)
	if err != nil || outcome != OutcomeApplied {
		t.Fatalf("expected inline outcome, got %s (%v)", outcome, err)
	}
	if len(fallback.events) != 1 {
		t.Fatalf("expected fallback to handle the event")
	}
}

func TestRelayIgnoresUnknownEvents(t *testing.T) {
	publisher := &stubPublisher{}
	relay := newTestRelay(t, publisher, &recordingHandler{})

	outcome, err := relay.Handle(context.Background(), Event{Type: EventUnknown, RawType: "email.created"})
	if err != nil || outcome != OutcomeIgnored {
		t.Fatalf("expected ignored, got %s (%v)", outcome, err)
	}
	if publisher.calls != 0 {
		t.Fatal("unknown events must not be published")
	}
}

func newTestRelay(t *testing.T, publisher QueuePublisher, fallback Handler) *Relay {
	t.Helper()
	relay, err := NewRelay(publisher, fallback, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return relay
}

type stubPublisher struct {
	calls int
	data  []byte
	attrs map[string]string
	err   error
}

func (p *stubPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	p.calls++
	p.data = data
	p.attrs = attrs
	if p.err != nil {
		return "", p.err
	}
	return "server-1", nil
}
