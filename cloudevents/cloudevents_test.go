package cloudevents

import (
	"encoding/json"
	"testing"

	"github.com/fxsml/gocommand/eventstore"
)

type deposited struct {
	Amount int `json:"amount"`
}

func TestEncodeDecode_Roundtrip(t *testing.T) {
	rec := eventstore.RecordedEvent{
		EventID:   "e1",
		EventType: "Deposited",
		Data:      deposited{Amount: 5},
		Metadata: map[string]any{
			eventstore.MetaCausationID:   "cmd-1",
			eventstore.MetaCorrelationID: "corr-1",
		},
		StreamID:      "bank-account-ACC1",
		StreamVersion: 3,
	}

	data, err := Encode(rec, "")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.EventID != "e1" || decoded.EventType != "Deposited" {
		t.Errorf("unexpected identity: %+v", decoded)
	}
	if decoded.StreamID != "bank-account-ACC1" {
		t.Errorf("expected stream in subject, got %s", decoded.StreamID)
	}
	if decoded.StreamVersion != 3 {
		t.Errorf("expected stream version 3, got %d", decoded.StreamVersion)
	}
	if decoded.Metadata[eventstore.MetaCausationID] != "cmd-1" {
		t.Errorf("expected causation preserved, got %v", decoded.Metadata)
	}
	if decoded.Metadata[eventstore.MetaCorrelationID] != "corr-1" {
		t.Errorf("expected correlation preserved, got %v", decoded.Metadata)
	}

	raw, ok := decoded.Data.(json.RawMessage)
	if !ok {
		t.Fatalf("expected raw JSON data, got %T", decoded.Data)
	}
	var d deposited
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if d.Amount != 5 {
		t.Errorf("expected amount 5, got %d", d.Amount)
	}
}

func TestToCloudEvent_Attributes(t *testing.T) {
	e, err := ToCloudEvent(eventstore.RecordedEvent{
		EventID:       "e1",
		EventType:     "AccountOpened",
		Data:          deposited{},
		StreamID:      "s1",
		StreamVersion: 1,
	}, "bank")
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if e.Source() != "bank" {
		t.Errorf("expected source bank, got %s", e.Source())
	}
	if e.Type() != "AccountOpened" {
		t.Errorf("expected type AccountOpened, got %s", e.Type())
	}
	if e.Subject() != "s1" {
		t.Errorf("expected subject s1, got %s", e.Subject())
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
