package api

import (
	"log/slog"

	"github.com/shaiso/Golemata/internal/domain"
	"github.com/shaiso/Golemata/internal/repo"
	"github.com/shaiso/Golemata/internal/runner"
)

// Handler — обработчик локального control API запущенной сессии.
type Handler struct {
	runner      *runner.Runner
	session     *domain.Session
	sessionRepo *repo.SessionRepo
	control     chan<- domain.Command
	stateBuf    *StreamBuffer
	dataBuf     *StreamBuffer
	logger      *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	// Runner — оркестратор текущей сессии.
	Runner *runner.Runner

	// Session — запись текущей сессии.
	Session *domain.Session

	// SessionRepo — репозиторий сессий. Nil, если Postgres не подключён.
	SessionRepo *repo.SessionRepo

	// Control — канал команд уровня приложения (stop, suspend).
	Control chan<- domain.Command

	// StateBuffer, DataBuffer — буферы последних записей потоков.
	StateBuffer *StreamBuffer
	DataBuffer  *StreamBuffer

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		runner:      cfg.Runner,
		session:     cfg.Session,
		sessionRepo: cfg.SessionRepo,
		control:     cfg.Control,
		stateBuf:    cfg.StateBuffer,
		dataBuf:     cfg.DataBuffer,
		logger:      cfg.Logger,
	}
}
