package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	// ExchangeStreams — исходящие потоки приложения (state, data).
	ExchangeStreams Exchange = "golemata.streams"

	// ExchangeCommands — входящие команды управления приложением.
	ExchangeCommands Exchange = "golemata.commands"

	// ExchangeDLQ — неразобранные команды.
	ExchangeDLQ Exchange = "golemata.dlq"
)

// Queues — имена очередей.
const (
	QueueStreamState     Queue = "streams.state"
	QueueStreamData      Queue = "streams.data"
	QueueCommandsInbound Queue = "commands.inbound"
	QueueDLQCommands     Queue = "dlq.commands"
)

// Routing keys.
const (
	RoutingKeyState       RoutingKey = "state"
	RoutingKeyData        RoutingKey = "data"
	RoutingKeyCommand     RoutingKey = "command"
	RoutingKeyDLQCommands RoutingKey = "commands"
)

func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareExchanges(ch); err != nil {
			return err
		}
		if err := declareQueues(ch); err != nil {
			return err
		}
		if err := bindQueues(ch); err != nil {
			return err
		}
		return nil
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeStreams, "direct"},
		{ExchangeCommands, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	// Некорректные команды уходят в DLQ на ручной разбор
	dlqArgs := amqp.Table{
		"x-dead-letter-exchange":    string(ExchangeDLQ),
		"x-dead-letter-routing-key": string(RoutingKeyDLQCommands),
	}

	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// Потоки наблюдения — без DLQ, потеря не критична
		{QueueStreamState, nil},
		{QueueStreamData, nil},

		// Команды — с DLQ после исчерпания retry
		{QueueCommandsInbound, dlqArgs},

		{QueueDLQCommands, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueStreamState, RoutingKeyState, ExchangeStreams},
		{QueueStreamData, RoutingKeyData, ExchangeStreams},
		{QueueCommandsInbound, RoutingKeyCommand, ExchangeCommands},
		{QueueDLQCommands, RoutingKeyDLQCommands, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Golemata RabbitMQ Topology:

    golemata.streams (direct)
    ├── streams.state [routing: state]
    │       Consumer: observers
    └── streams.data  [routing: data]
            Consumer: observers

    golemata.commands (direct)
    └── commands.inbound [routing: command]
            Consumer: runner
            DLQ: dlq.commands

    golemata.dlq (direct)
    └── dlq.commands [routing: commands]
            Manual processing
  `
}
