package provider

import (
	"context"
	"errors"

	"github.com/shaiso/Golemata/internal/descriptor"
	"github.com/shaiso/Golemata/internal/domain"
)

// Ошибки взаимодействия с провайдером.
var (
	// ErrCommissionFailed — не удалось получить экземпляр на маркетплейсе.
	ErrCommissionFailed = errors.New("instance commissioning failed")

	// ErrInstanceGone — экземпляр уже завершён.
	ErrInstanceGone = errors.New("instance already terminated")
)

// CommissionRequest — запрос на развёртывание одного экземпляра узла.
type CommissionRequest struct {
	// Node — имя узла из дескриптора.
	Node string

	// Index — индекс реплики узла.
	Index int

	// Payload — payload, разворачиваемый на провайдере.
	Payload *descriptor.Payload

	// Spec — описание узла (прокси и сеть уже разрешены).
	Spec *descriptor.Node

	// Init — init-команды с уже подставленными ${...}-выражениями.
	Init []descriptor.Command

	// NetworkID — идентификатор сети, к которой подключается
	// экземпляр. Пустая строка — вне сети.
	NetworkID string
}

// ExecResult — результат выполнения пакета команд на экземпляре.
type ExecResult struct {
	// Success — флаг успешного выполнения.
	Success bool `json:"success"`

	// Stdout — стандартный вывод команд.
	Stdout string `json:"stdout,omitempty"`

	// Stderr — стандартный вывод ошибок.
	Stderr string `json:"stderr,omitempty"`
}

// ExecHandle — дескриптор отправленного пакета команд.
//
// Отправка и ожидание результата разделены: Submit возвращает
// handle сразу, Await блокируется до завершения выполнения.
type ExecHandle interface {
	Await(ctx context.Context) (*ExecResult, error)
}

// Instance — один живой удалённый экземпляр узла.
type Instance interface {
	// ProviderID — идентификатор провайдера, на котором работает
	// экземпляр. Используется для blacklist при сбоях.
	ProviderID() string

	// AgreementID — идентификатор соглашения.
	AgreementID() string

	// ActivityID — идентификатор активности.
	ActivityID() string

	// IP — адрес экземпляра внутри сети приложения.
	IP() string

	// States — приватная очередь смен состояния экземпляра.
	// Закрывается после завершения или приостановки экземпляра.
	States() <-chan domain.NodeState

	// Data — приватная очередь данных экземпляра (результаты
	// команд и прочие полезные сообщения).
	Data() <-chan map[string]any

	// Submit отправляет пакет команд на выполнение.
	Submit(ctx context.Context, commands []descriptor.Command) (ExecHandle, error)

	// Suspend приостанавливает экземпляр, сохраняя соглашение.
	Suspend(ctx context.Context) error

	// Terminate завершает экземпляр и разрывает соглашение.
	Terminate(ctx context.Context) error
}

// Provider — внешний collaborator компьют-маркетплейса.
//
// Протокол маркетплейса (переговоры, соглашения, платежи, VPN,
// транспорт команд) целиком скрыт за этим интерфейсом.
type Provider interface {
	// CreateNetwork создаёт VPN-сеть и возвращает её идентификатор.
	CreateNetwork(ctx context.Context, network *descriptor.Network) (string, error)

	// RemoveNetwork удаляет сеть.
	RemoveNetwork(ctx context.Context, networkID string) error

	// Commission разворачивает один экземпляр узла.
	Commission(ctx context.Context, req CommissionRequest) (Instance, error)
}
