package domain

import "time"

// StateSnapshot — снимок состояния приложения для потока state.
//
// Эмитится при каждой смене состояния любого экземпляра плюс один
// финальный снимок при остановке.
type StateSnapshot struct {
	// App — вычисленное агрегированное состояние приложения.
	App AppState `json:"app"`

	// Nodes — состояния экземпляров по узлам: имя узла → индекс
	// реплики → состояние.
	Nodes map[string]map[int]NodeState `json:"nodes"`

	// Timestamp — момент снятия снимка.
	Timestamp time.Time `json:"timestamp"`
}

// DataEntry — запись потока data: полезные данные от узла
// (результаты init-команд, адреса прокси и т.п.).
type DataEntry struct {
	// Node — имя узла-источника.
	Node string `json:"node"`

	// Index — индекс реплики узла.
	Index int `json:"index"`

	// Payload — произвольные данные узла.
	Payload map[string]any `json:"payload"`

	// Timestamp — момент появления записи.
	Timestamp time.Time `json:"timestamp"`
}

// Command — входящая команда управления приложением.
type Command string

const (
	// CommandStop — остановить приложение и завершить процесс.
	CommandStop Command = "stop"

	// CommandSuspend — приостановить приложение, сохранив соглашения.
	CommandSuspend Command = "suspend"
)

// ParseCommand парсит строку в Command.
// Неизвестная строка возвращает пустую команду и false.
func ParseCommand(s string) (Command, bool) {
	switch Command(s) {
	case CommandStop, CommandSuspend:
		return Command(s), true
	default:
		return "", false
	}
}
