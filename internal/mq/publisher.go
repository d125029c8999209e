package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/Golemata/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeStateSnapshot MessageType = "state.snapshot"
	MessageTypeDataEntry     MessageType = "data.entry"
	MessageTypeCommand       MessageType = "command"
)

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// SessionID — идентификатор сессии приложения.
	SessionID uuid.UUID `json:"session_id"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// CommandPayload — payload входящей команды управления.
//
// Команда уровня приложения ("stop", "suspend") несёт только Command;
// команда узла несёт Node, Index и Commands в любой из сокращённых
// форм init-команд.
type CommandPayload struct {
	// Command — команда уровня приложения.
	Command string `json:"command,omitempty"`

	// Node — имя узла-адресата.
	Node string `json:"node,omitempty"`

	// Index — индекс реплики узла.
	Index int `json:"index,omitempty"`

	// Commands — команды для выполнения на экземпляре.
	Commands any `json:"commands,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishState публикует снимок состояния приложения.
func (p *Publisher) PublishState(ctx context.Context, sessionID uuid.UUID, snapshot domain.StateSnapshot) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeStateSnapshot,
		SessionID: sessionID,
		Payload:   snapshot,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeStreams, RoutingKeyState, msg)
}

// PublishData публикует запись потока data.
func (p *Publisher) PublishData(ctx context.Context, sessionID uuid.UUID, entry domain.DataEntry) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeDataEntry,
		SessionID: sessionID,
		Payload:   entry,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeStreams, RoutingKeyData, msg)
}

// PublishCommand публикует команду управления приложением.
// Потребитель: runner.
func (p *Publisher) PublishCommand(ctx context.Context, sessionID uuid.UUID, payload CommandPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeCommand,
		SessionID: sessionID,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeCommands, RoutingKeyCommand, msg)
}
