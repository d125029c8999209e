package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Golemata/internal/domain"
)

// SessionRepo — репозиторий сессий запуска приложений.
type SessionRepo struct {
	pool *pgxpool.Pool
}

// NewSessionRepo создаёт новый SessionRepo.
func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

// Create создаёт новую сессию.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	query := `
		INSERT INTO sessions (id, run_id, state, started_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.RunID,
		s.State,
		s.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetByID возвращает сессию по ID.
func (r *SessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, run_id, state, started_at, finished_at, snapshot
		FROM sessions
		WHERE id = $1
	`
	return r.scanSession(r.pool.QueryRow(ctx, query, id))
}

// GetByRunID возвращает сессию по человекочитаемому идентификатору.
func (r *SessionRepo) GetByRunID(ctx context.Context, runID string) (*domain.Session, error) {
	query := `
		SELECT id, run_id, state, started_at, finished_at, snapshot
		FROM sessions
		WHERE run_id = $1
	`
	return r.scanSession(r.pool.QueryRow(ctx, query, runID))
}

// List возвращает последние сессии.
func (r *SessionRepo) List(ctx context.Context, limit, offset int) ([]domain.Session, error) {
	query := `
		SELECT id, run_id, state, started_at, finished_at, snapshot
		FROM sessions
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		var s domain.Session
		err := rows.Scan(&s.ID, &s.RunID, &s.State, &s.StartedAt, &s.FinishedAt, &s.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// UpdateState обновляет последнее известное состояние сессии.
func (r *SessionRepo) UpdateState(ctx context.Context, id uuid.UUID, state domain.AppState) error {
	query := `
		UPDATE sessions
		SET state = $2
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, id, state)
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Finish фиксирует завершение сессии и, при suspend, её снапшот.
func (r *SessionRepo) Finish(ctx context.Context, s *domain.Session) error {
	query := `
		UPDATE sessions
		SET state = $2, finished_at = $3, snapshot = $4
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		s.ID,
		s.State,
		s.FinishedAt,
		s.Snapshot,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanSession сканирует одну строку в Session.
func (r *SessionRepo) scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(
		&s.ID,
		&s.RunID,
		&s.State,
		&s.StartedAt,
		&s.FinishedAt,
		&s.Snapshot,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, nil
}
