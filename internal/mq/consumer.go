package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler — обработчик входящей команды.
// Ошибка обработчика возвращает сообщение в очередь.
type Handler func(ctx context.Context, msg *Delivery) error

// Delivery — доставленное сообщение очереди команд.
type Delivery struct {
	// Message — распарсенный конверт сообщения.
	Message Message

	// Raw — сырое AMQP сообщение.
	Raw amqp.Delivery
}

// Consumer читает очередь входящих команд commands.inbound.
//
// Подтверждение ручное, по одному сообщению за раз: команды
// управления приложением должны применяться в порядке поступления.
// Нечитаемое тело уходит в dlq.commands.
type Consumer struct {
	conn    *Connection
	logger  *slog.Logger
	handler Handler
}

// NewCommandConsumer создаёт consumer очереди входящих команд.
func NewCommandConsumer(conn *Connection, logger *slog.Logger, handler Handler) *Consumer {
	return &Consumer{
		conn:    conn,
		logger:  logger,
		handler: handler,
	}
}

// Start запускает потребление и блокируется до отмены контекста.
// Разрыв соединения пересоздаёт подписку после переподключения.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		deliveries, err := c.subscribe(ctx)
		if err != nil {
			c.logger.Error("failed to subscribe", "queue", QueueCommandsInbound, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.reconnectNotify():
				c.logger.Info("reconnected, restarting consumer", "queue", QueueCommandsInbound)
				continue
			}
		}

		c.logger.Info("command consumer started", "queue", QueueCommandsInbound)

		if err := c.processDeliveries(ctx, deliveries); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("deliveries channel closed, reconnecting", "queue", QueueCommandsInbound)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.conn.reconnectNotify():
				continue
			}
		}
	}
}

// subscribe начинает потребление очереди команд.
func (c *Consumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, error) {
	var deliveries <-chan amqp.Delivery
	err := c.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// Одно сообщение за раз: команды применяются последовательно
		if err := ch.Qos(1, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
		d, err := ch.Consume(
			string(QueueCommandsInbound),
			"",    // consumer tag (auto-generated)
			false, // auto-ack (мы ack вручную)
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,   // args
		)
		if err != nil {
			return fmt.Errorf("consume: %w", err)
		}
		deliveries = d
		return nil
	})
	return deliveries, err
}

// processDeliveries обрабатывает сообщения из канала.
func (c *Consumer) processDeliveries(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case raw, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("deliveries channel closed")
			}
			c.handleDelivery(ctx, raw)
		}
	}
}

// handleDelivery обрабатывает одно сообщение.
func (c *Consumer) handleDelivery(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal command",
			"error", err,
			"body", string(raw.Body),
		)
		// Некорректное сообщение — в dlq.commands
		raw.Nack(false, false)
		return
	}

	c.logger.Debug("command received",
		"message_id", msg.ID,
		"type", msg.Type,
	)

	if err := c.handler(ctx, &Delivery{Message: msg, Raw: raw}); err != nil {
		c.logger.Error("command handler failed",
			"message_id", msg.ID,
			"error", err,
		)
		raw.Nack(false, true)
		return
	}

	raw.Ack(false)
}

// ParsePayload парсит payload сообщения в указанный тип.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	// Payload может быть уже распарсен как map или быть raw json
	payloadBytes, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(payloadBytes, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
