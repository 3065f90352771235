package identity

import (
	"errors"
	"testing"
)

func TestParseEventType(t *testing.T) {
	cases := map[string]EventType{
		"user.created":       EventCreated,
		"clerk/user.created": EventCreated,
		"user.updated":       EventUpdated,
		"clerk/user.updated": EventUpdated,
		"USER.DELETED":       EventDeleted,
		"clerk/user.deleted": EventDeleted,
		"session.created":    EventUnknown,
		"":                   EventUnknown,
	}
	for raw, want := range cases {
		if got := ParseEventType(raw); got != want {
			t.Fatalf("ParseEventType(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestDecodeEventEnvelopes(t *testing.T) {
	webhook, err := DecodeEvent([]byte(`{"type":"user.created","data":{"id":"u1"}}`), SourceWebhook, "msg_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if webhook.Type != EventCreated || webhook.DeliveryID != "msg_1" || string(webhook.Data) != `{"id":"u1"}` {
		t.Fatalf("unexpected webhook event %+v", webhook)
	}

	queued, err := DecodeEvent([]byte(`{"name":"clerk/user.updated","id":"evt_9","data":{"id":"u1"}}`), SourceQueue, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if queued.Type != EventUpdated || queued.DeliveryID != "evt_9" || queued.Source != SourceQueue {
		t.Fatalf("unexpected queued event %+v", queued)
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	for _, body := range []string{"", "   ", "not json", `{"type":`} {
		if _, err := DecodeEvent([]byte(body), SourceWebhook, ""); !errors.Is(err, ErrMalformedEvent) {
			t.Fatalf("DecodeEvent(%q) expected ErrMalformedEvent, got %v", body, err)
		}
	}
}

func TestEventEncodeRoundTrip(t *testing.T) {
	evt := Event{Type: EventDeleted, Data: []byte(`{"id":"u1"}`), DeliveryID: "d1"}
	body, err := evt.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeEvent(body, SourceQueue, "")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != EventDeleted || decoded.RawType != "user.deleted" || decoded.DeliveryID != "d1" {
		t.Fatalf("unexpected decoded event %+v", decoded)
	}
}
