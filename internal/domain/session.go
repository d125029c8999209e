package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session — запись о запуске приложения.
//
// Сессия создаётся на каждый вызов `golemata start` и живёт до
// завершения процесса. Опционально зеркалируется в Postgres.
type Session struct {
	// ID — уникальный идентификатор сессии.
	ID uuid.UUID `json:"id"`

	// RunID — человекочитаемый идентификатор запуска
	// (короткий префикс + отметка времени), используется как имя
	// каталога с файлами data/state/log.
	RunID string `json:"run_id"`

	// State — последнее известное агрегированное состояние.
	State AppState `json:"state"`

	// StartedAt — время начала сессии.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения сессии.
	// Nil, пока сессия активна.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Snapshot — сериализованный дескриптор с runtime-полями,
	// сохранённый при suspend. Пустой, если suspend не выполнялся.
	Snapshot []byte `json:"snapshot,omitempty"`
}

// NewSession создаёт новую сессию с уникальным идентификатором.
func NewSession(runID string) *Session {
	return &Session{
		ID:        uuid.New(),
		RunID:     runID,
		State:     AppStatePending,
		StartedAt: time.Now(),
	}
}

// Finish фиксирует завершение сессии в состоянии state.
func (s *Session) Finish(state AppState) {
	now := time.Now()
	s.State = state
	s.FinishedAt = &now
}
