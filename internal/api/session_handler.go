package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/Golemata/internal/domain"
	"github.com/shaiso/Golemata/internal/runner"
)

// GetState возвращает текущее вычисленное состояние приложения.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	Success(w, StateResponse{
		App:   h.runner.State(),
		Nodes: h.runner.NodeStates(),
	})
}

// GetDapp возвращает дескриптор с актуальными runtime-полями.
func (h *Handler) GetDapp(w http.ResponseWriter, r *http.Request) {
	tree, err := h.runner.Dapp().Tree()
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	Success(w, tree)
}

// GetStateHistory возвращает последние снимки состояния из потока state.
func (h *Handler) GetStateHistory(w http.ResponseWriter, r *http.Request) {
	if h.stateBuf == nil {
		Success(w, StreamResponse{Entries: []string{}})
		return
	}
	Success(w, StreamResponse{Entries: h.stateBuf.Entries()})
}

// GetData возвращает последние записи потока data.
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	if h.dataBuf == nil {
		Success(w, StreamResponse{Entries: []string{}})
		return
	}
	Success(w, StreamResponse{Entries: h.dataBuf.Entries()})
}

// GetSession возвращает запись текущей сессии.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	s := *h.session
	s.State = h.runner.State()
	Success(w, ToSessionResponse(&s))
}

// ListSessions возвращает последние сессии из Postgres.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if h.sessionRepo == nil {
		Success(w, []SessionResponse{})
		return
	}

	sessions, err := h.sessionRepo.List(r.Context(), 50, 0)
	if HandleRepoError(w, h.logger, err, "sessions not found") {
		return
	}

	out := make([]SessionResponse, len(sessions))
	for i := range sessions {
		out[i] = ToSessionResponse(&sessions[i])
	}
	List(w, out, len(out))
}

// PostCommand принимает команду управления.
//
// Команда уровня приложения уходит в канал control; команда узла
// выполняется на экземпляре немедленно.
func (h *Handler) PostCommand(w http.ResponseWriter, r *http.Request) {
	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON body")
		return
	}

	if req.Command != "" {
		cmd, ok := domain.ParseCommand(req.Command)
		if !ok {
			BadRequest(w, "unknown command: "+req.Command)
			return
		}
		select {
		case h.control <- cmd:
		default:
			InvalidState(w, "a control command is already in flight")
			return
		}
		NoContent(w)
		return
	}

	if req.Node == "" {
		BadRequest(w, "either `command` or `node` is required")
		return
	}
	if err := h.runner.Exec(r.Context(), req.Node, req.Index, req.Commands); err != nil {
		switch {
		case errors.Is(err, runner.ErrUnknownNode), errors.Is(err, runner.ErrUnknownInstance):
			NotFound(w, err.Error())
		default:
			BadRequest(w, err.Error())
		}
		return
	}
	NoContent(w)
}

// Healthz возвращает 200, пока процесс жив.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	Success(w, map[string]string{"status": "ok"})
}
