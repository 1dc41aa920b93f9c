package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	TypeCollectionCreated MessageType = "collection_created"
	TypePing              MessageType = "ping"
	TypePong              MessageType = "pong"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type CollectionCreatedPayload struct {
	ID          string `json:"id"`
	BatchID     string `json:"batchId"`
	CollectorID string `json:"collectorId"`
	SpeciesName string `json:"speciesName"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
