package queue

import (
	"reflect"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	msg := Message{
		AnalysisID: "analysis-123",
		Ticker:     "TEST",
		RequestID:  "request-456",
		EnqueuedAt: "2026-08-28T22:00:00Z",
		Version:    1,
	}

	payload, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}

	got, err := DecodeMessage(payload)
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}

	if !reflect.DeepEqual(got, msg) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, msg)
	}
}

func TestDecodeMessageRejectsInvalidJSON(t *testing.T) {
	if _, err := DecodeMessage([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecodeMessageToleratesUnknownFields(t *testing.T) {
	got, err := DecodeMessage([]byte(`{"analysisId":"a1","future":"field"}`))
	if err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if got.AnalysisID != "a1" {
		t.Fatalf("analysis id lost: %+v", got)
	}
}
