package repo

import "errors"

// Общие ошибки репозитория сессий.
var (
	// ErrNotFound — сессия не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState — операция невозможна в текущем состоянии сессии.
	ErrInvalidState = errors.New("invalid state")
)
