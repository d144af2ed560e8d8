package queue

import (
	"encoding/json"
	"time"
)

// MessageVersion is the current analysis message schema version.
const MessageVersion = 1

// Message is the payload sent to downstream queue consumers.
type Message struct {
	AnalysisID string `json:"analysisId"`
	Ticker     string `json:"ticker"`
	RequestID  string `json:"requestId"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewMessage builds a current-version message stamped with the enqueue time.
func NewMessage(analysisID, ticker, requestID string) Message {
	return Message{
		AnalysisID: analysisID,
		Ticker:     ticker,
		RequestID:  requestID,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message. Unknown fields are
// tolerated so older workers can consume newer messages.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
