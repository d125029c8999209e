// Package engine содержит граф зависимостей и движок запросов GAOM.
//
// Включает:
//   - graph.go       — построение графа depends_on и порядок запуска
//   - lookup.go      — разрешение путей key(.key|[index])* по дереву
//   - interpolate.go — подстановка токенов ${path} в документы
//
// Engine отвечает за понимание структуры дескриптора: порядок
// запуска узлов и адресацию любых его полей, включая runtime-поля.
package engine
