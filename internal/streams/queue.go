package streams

import "sync"

// queue — неограниченная FIFO-очередь синка.
//
// Неограниченность гарантирует, что раздатчик источника никогда не
// блокируется на медленном синке; порядок сообщений одной очереди
// сохраняется.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []any
	closed bool
}

// newQueue создаёт пустую очередь.
func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push добавляет сообщение. После close — no-op.
func (q *queue) push(msg any) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, msg)
	q.cond.Signal()
}

// pop блокируется до появления сообщения либо закрытия очереди.
// Возвращает ok == false, когда очередь закрыта и пуста.
func (q *queue) pop() (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// close закрывает очередь; уже поставленные сообщения остаются
// доступными для pop.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
