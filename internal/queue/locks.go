package queue

import (
	"sync"
	"time"
)

// locationLocks сериализует мутации очереди по салонам: все изменяющие
// операции для одного салона выполняются строго по одной, очереди разных
// салонов независимы. Захват ограничен тайм-аутом, чтобы зависшая операция
// не держала очередь вечно.
type locationLocks struct {
	mu   sync.Mutex
	sems map[uint]chan struct{}
}

func newLocationLocks() *locationLocks {
	return &locationLocks{sems: make(map[uint]chan struct{})}
}

func (l *locationLocks) sem(locationID uint) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[locationID]
	if !ok {
		s = make(chan struct{}, 1)
		l.sems[locationID] = s
	}
	return s
}

// acquire захватывает блокировку очереди салона. Возвращает функцию
// освобождения либо ErrLocationBusy по истечении тайм-аута.
func (l *locationLocks) acquire(locationID uint, timeout time.Duration) (func(), error) {
	s := l.sem(locationID)
	select {
	case s <- struct{}{}:
		return func() { <-s }, nil
	case <-time.After(timeout):
		return nil, ErrLocationBusy
	}
}
