package runner

import (
	"fmt"
	"sync"
)

// PortAllocator — явный аллокатор локальных портов для прокси.
//
// Создаётся один раз при старте runner и передаётся по ссылке;
// процесс-глобального состояния нет.
type PortAllocator struct {
	mu    sync.Mutex
	start int
	end   int
	used  map[int]struct{}
}

// NewPortAllocator создаёт аллокатор для диапазона [start, end].
func NewPortAllocator(start, end int) *PortAllocator {
	return &PortAllocator{
		start: start,
		end:   end,
		used:  make(map[int]struct{}),
	}
}

// Allocate выделяет первый свободный порт диапазона.
// Порты, возвращённые через Release, доступны повторно.
func (a *PortAllocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for port := a.start; port <= a.end; port++ {
		if _, taken := a.used[port]; taken {
			continue
		}
		a.used[port] = struct{}{}
		return port, nil
	}
	return 0, ErrNoFreePorts
}

// Reserve занимает конкретный порт, объявленный в дескрипторе.
func (a *PortAllocator) Reserve(port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, taken := a.used[port]; taken {
		return fmt.Errorf("%w: %d", ErrPortTaken, port)
	}
	a.used[port] = struct{}{}
	return nil
}

// Release возвращает порт в пул.
func (a *PortAllocator) Release(port int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.used, port)
}
