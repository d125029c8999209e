// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//   - sink.go       — синк потоков state/data поверх AMQP
//
// Типы сообщений:
//   - state.snapshot — снимок состояния приложения
//   - data.entry     — запись потока data
//   - command        — входящая команда управления
//
// Exchanges:
//   - golemata.streams  — исходящие потоки приложения
//   - golemata.commands — входящие команды
//   - golemata.dlq      — dead letter queue
package mq
