package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Golemata/internal/domain"
)

// CommandRequest — тело POST /api/v1/command.
//
// Либо команда уровня приложения (command: stop | suspend), либо
// команды для выполнения на экземпляре узла (node, index, commands).
type CommandRequest struct {
	// Command — команда уровня приложения.
	Command string `json:"command,omitempty"`

	// Node — имя узла-адресата.
	Node string `json:"node,omitempty"`

	// Index — индекс реплики узла.
	Index int `json:"index,omitempty"`

	// Commands — команды в любой из сокращённых форм init.
	Commands any `json:"commands,omitempty"`
}

// StateResponse — ответ GET /api/v1/state.
type StateResponse struct {
	// App — текущее вычисленное состояние приложения.
	App domain.AppState `json:"app"`

	// Nodes — состояния реплик по узлам.
	Nodes map[string]map[int]domain.NodeState `json:"nodes"`
}

// SessionResponse — ответ GET /api/v1/session.
type SessionResponse struct {
	ID         uuid.UUID       `json:"id"`
	RunID      string          `json:"run_id"`
	State      domain.AppState `json:"state"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// ToSessionResponse преобразует Session в DTO.
func ToSessionResponse(s *domain.Session) SessionResponse {
	return SessionResponse{
		ID:         s.ID,
		RunID:      s.RunID,
		State:      s.State,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
	}
}

// StreamResponse — ответ GET /api/v1/data.
type StreamResponse struct {
	// Entries — записи потока, от старых к новым.
	Entries []string `json:"entries"`
}
