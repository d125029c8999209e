// Package provider описывает границу с компьют-маркетплейсом.
//
// Включает:
//   - provider.go — интерфейс Provider/Instance и типы запросов
//   - scoring.go  — blacklist-обёртка оценки офферов
//
// Сам протокол маркетплейса (переговоры, соглашения, платежи,
// VPN-туннели, транспорт команд) реализуется снаружи.
package provider
