// Package runner — оркестратор жизненного цикла приложения:
// запуск узлов в порядке зависимостей, наблюдение за экземплярами,
// вычисление агрегированного состояния, остановка и приостановка.
package runner
