package identity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEvent is returned when an event body cannot be parsed at all.
var ErrMalformedEvent = errors.New("malformed identity event")

// EventType is the provider-independent lifecycle transition.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
	EventUnknown EventType = "unknown"
)

// ParseEventType maps provider event names, including namespaced queue
// variants such as "clerk/user.created", onto EventType.
func ParseEventType(raw string) EventType {
	name := strings.ToLower(strings.TrimSpace(raw))
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	switch name {
	case "user.created":
		return EventCreated
	case "user.updated":
		return EventUpdated
	case "user.deleted":
		return EventDeleted
	default:
		return EventUnknown
	}
}

// Source names the transport an event arrived on.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourceQueue   Source = "queue"
)

// Event is a transient inbound identity notification.
type Event struct {
	Type       EventType
	RawType    string
	Data       json.RawMessage
	DeliveryID string
	Source     Source
}

type envelope struct {
	Type string          `json:"type"`
	Name string          `json:"name"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// DecodeEvent parses a provider envelope ({"type"|"name", "data"}).
// deliveryID, when non-empty, takes precedence over an id in the body.
func DecodeEvent(body []byte, source Source, deliveryID string) (Event, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return Event{}, fmt.Errorf("%w: empty body", ErrMalformedEvent)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	rawType := env.Type
	if rawType == "" {
		rawType = env.Name
	}
	if strings.TrimSpace(deliveryID) == "" {
		deliveryID = env.ID
	}

	return Event{
		Type:       ParseEventType(rawType),
		RawType:    rawType,
		Data:       env.Data,
		DeliveryID: strings.TrimSpace(deliveryID),
		Source:     source,
	}, nil
}

// Encode renders the event back into the envelope understood by DecodeEvent.
func (e Event) Encode() ([]byte, error) {
	rawType := e.RawType
	if rawType == "" {
		rawType = "user." + string(e.Type)
	}
	return json.Marshal(envelope{Type: rawType, ID: e.DeliveryID, Data: e.Data})
}

// Outcome reports what the engine did with an event.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDeleted   Outcome = "deleted"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDropped   Outcome = "dropped"
	OutcomeQueued    Outcome = "queued"
	OutcomeFailed    Outcome = "failed"
)
