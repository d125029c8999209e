// Package streams содержит мультиплексор потоков приложения.
//
// Включает:
//   - streams.go — fan-out очередей state/data на несколько синков
//   - queue.go   — неограниченная FIFO-очередь синка
//   - infile.go  — чтение входящих команд из дописываемого файла
//
// Раздатчик источника никогда не блокируется медленным синком;
// Stop дописывает уже поставленные сообщения перед выходом.
package streams
