// Package descriptor содержит модель дескриптора приложения.
//
// Включает:
//   - dapp.go     — типизированное дерево payloads/nodes/networks
//   - command.go  — канонизация сокращённых форм init-команд
//   - parser.go   — загрузка и глубокое слияние YAML-файлов
//   - config.go   — конфигурационный дескриптор запуска
//   - manifest.go — проверка временных границ манифестов
//
// Дескриптор строится один раз при загрузке: приведение полей,
// проверка ссылок, вывод implicit-умолчаний, граф зависимостей.
package descriptor
