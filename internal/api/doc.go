// Package api содержит локальный control API запущенной сессии.
//
// Структура:
//   - handler.go         — Handler с DI (runner, сессия, repo, logger)
//   - routes.go          — регистрация маршрутов
//   - middleware.go      — middleware (logging, recovery)
//   - response.go        — унифицированные JSON-ответы и обработка ошибок
//   - dto.go             — Data Transfer Objects (request/response)
//   - buffer.go          — кольцевой буфер записей потоков
//   - session_handler.go — обработчики state/data/command/session
//
// API предоставляет REST endpoints для наблюдения за приложением и
// отправки команд управления.
package api
