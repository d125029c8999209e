package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StreamSink — синк потока поверх AMQP: каждая запись потока
// публикуется отдельным сообщением в обменник потоков.
//
// Реализует интерфейс streams.Sink.
type StreamSink struct {
	pub        *Publisher
	sessionID  uuid.UUID
	routingKey RoutingKey
	msgType    MessageType
}

// NewStateSink создаёт синк потока state.
func NewStateSink(pub *Publisher, sessionID uuid.UUID) *StreamSink {
	return &StreamSink{
		pub:        pub,
		sessionID:  sessionID,
		routingKey: RoutingKeyState,
		msgType:    MessageTypeStateSnapshot,
	}
}

// NewDataSink создаёт синк потока data.
func NewDataSink(pub *Publisher, sessionID uuid.UUID) *StreamSink {
	return &StreamSink{
		pub:        pub,
		sessionID:  sessionID,
		routingKey: RoutingKeyData,
		msgType:    MessageTypeDataEntry,
	}
}

// Write публикует одну запись потока.
// JSON-записи публикуются как есть, остальные — строкой.
func (s *StreamSink) Write(entry string) error {
	var payload any = entry
	var raw json.RawMessage
	if json.Unmarshal([]byte(entry), &raw) == nil {
		payload = raw
	}

	msg := &Message{
		ID:        uuid.New().String(),
		Type:      s.msgType,
		SessionID: s.sessionID,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	return s.pub.Publish(context.Background(), ExchangeStreams, s.routingKey, msg)
}
