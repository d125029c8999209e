package api

import "sync"

// StreamBuffer — кольцевой буфер последних записей потока.
//
// Реализует интерфейс streams.Sink: подключается к мультиплексору
// потоков как обычный синк и отдаёт накопленные записи по HTTP.
type StreamBuffer struct {
	mu      sync.RWMutex
	entries []string
	limit   int
}

// NewStreamBuffer создаёт буфер на limit последних записей.
func NewStreamBuffer(limit int) *StreamBuffer {
	if limit <= 0 {
		limit = 100
	}
	return &StreamBuffer{limit: limit}
}

// Write добавляет запись, вытесняя самую старую при переполнении.
func (b *StreamBuffer) Write(entry string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, entry)
	if len(b.entries) > b.limit {
		b.entries = b.entries[len(b.entries)-b.limit:]
	}
	return nil
}

// Entries возвращает копию накопленных записей, от старых к новым.
func (b *StreamBuffer) Entries() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string{}, b.entries...)
}
