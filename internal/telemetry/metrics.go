package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики Prometheus, публикуемые на /metrics команды start.
var (
	// InstanceStates — количество экземпляров по узлам и состояниям.
	InstanceStates = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "golemata_instance_states",
		Help: "Number of node instances per state.",
	}, []string{"node", "state"})

	// InstanceFailures — количество аварийных завершений экземпляров.
	InstanceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "golemata_instance_failures_total",
		Help: "Total instances terminated while the app was expected to run.",
	}, []string{"node"})

	// StreamMessages — количество сообщений, записанных в синки потоков.
	StreamMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "golemata_stream_messages_total",
		Help: "Total messages written to stream sinks.",
	})

	// CommandsExecuted — количество пакетов команд, отправленных узлам.
	CommandsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "golemata_commands_total",
		Help: "Total command batches submitted to node instances.",
	}, []string{"node"})
)
