// Package cloudevents bridges recorded events and CloudEvents envelopes.
// Appended events are published to the bus as structured-JSON CloudEvents
// so external consumers can decode them without knowing the runtime's
// internal shapes.
//
// Mapping: event ID → id, event type → type, stream ID → subject, stream
// version → "streamversion" extension, causation and correlation IDs →
// "causationid" / "correlationid" extensions.
package cloudevents

import (
	"encoding/json"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/cloudevents/sdk-go/v2/event"

	"github.com/fxsml/gocommand/eventstore"
)

// DefaultSource is the CloudEvents source set on encoded events.
const DefaultSource = "gocommand"

// Extension attribute names for stream bookkeeping.
const (
	ExtStreamVersion = "streamversion"
	ExtCausationID   = "causationid"
	ExtCorrelationID = "correlationid"
)

// ToCloudEvent converts a recorded event into a CloudEvents envelope with
// JSON-encoded data.
func ToCloudEvent(rec eventstore.RecordedEvent, source string) (event.Event, error) {
	if source == "" {
		source = DefaultSource
	}

	e := cloudevents.NewEvent()
	e.SetID(rec.EventID)
	e.SetType(rec.EventType)
	e.SetSource(source)
	e.SetSubject(rec.StreamID)
	e.SetTime(time.Now().UTC())
	e.SetExtension(ExtStreamVersion, rec.StreamVersion)

	if v, ok := rec.Metadata[eventstore.MetaCausationID].(string); ok && v != "" {
		e.SetExtension(ExtCausationID, v)
	}
	if v, ok := rec.Metadata[eventstore.MetaCorrelationID].(string); ok && v != "" {
		e.SetExtension(ExtCorrelationID, v)
	}

	data, err := json.Marshal(rec.Data)
	if err != nil {
		return event.Event{}, fmt.Errorf("cloudevents: marshal %s data: %w", rec.EventType, err)
	}
	if err := e.SetData(cloudevents.ApplicationJSON, json.RawMessage(data)); err != nil {
		return event.Event{}, fmt.Errorf("cloudevents: set %s data: %w", rec.EventType, err)
	}
	return e, nil
}

// Encode serializes a recorded event as a structured-JSON CloudEvent.
func Encode(rec eventstore.RecordedEvent, source string) ([]byte, error) {
	e, err := ToCloudEvent(rec, source)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("cloudevents: encode %s: %w", rec.EventType, err)
	}
	return data, nil
}

// Decode parses a structured-JSON CloudEvent back into a recorded event.
// The event data stays as json.RawMessage.
func Decode(data []byte) (eventstore.RecordedEvent, error) {
	var e event.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return eventstore.RecordedEvent{}, fmt.Errorf("cloudevents: decode: %w", err)
	}

	rec := eventstore.RecordedEvent{
		EventID:   e.ID(),
		EventType: e.Type(),
		Data:      json.RawMessage(e.Data()),
		StreamID:  e.Subject(),
	}

	ext := e.Extensions()
	if v, ok := ext[ExtStreamVersion]; ok {
		switch n := v.(type) {
		case int64:
			rec.StreamVersion = n
		case int32:
			rec.StreamVersion = int64(n)
		case float64:
			rec.StreamVersion = int64(n)
		case string:
			var parsed int64
			if _, err := fmt.Sscan(n, &parsed); err == nil {
				rec.StreamVersion = parsed
			}
		}
	}

	meta := make(map[string]any)
	if v, ok := ext[ExtCausationID].(string); ok && v != "" {
		meta[eventstore.MetaCausationID] = v
	}
	if v, ok := ext[ExtCorrelationID].(string); ok && v != "" {
		meta[eventstore.MetaCorrelationID] = v
	}
	if len(meta) > 0 {
		rec.Metadata = meta
	}
	return rec, nil
}
