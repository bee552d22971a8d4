package goroutine

import "sync"

// KeyedRunner выполняет задачи с одинаковым ключом строго по очереди в порядке
// поступления. Задачи с разными ключами идут параллельно.
type KeyedRunner[K comparable] struct {
	mu       sync.Mutex
	pending  map[K][]func()
	spawn    func(func())
	recovery *RecoveryHandler
}

// NewKeyedRunner создает очередь. spawn запускает обработчик ключа, nil означает SafeGo.
func NewKeyedRunner[K comparable](spawn func(func())) *KeyedRunner[K] {
	if spawn == nil {
		spawn = SafeGo
	}
	return &KeyedRunner[K]{
		pending:  make(map[K][]func()),
		spawn:    spawn,
		recovery: DefaultRecoveryHandler,
	}
}

// Go ставит fn в очередь ключа. Если ключ простаивает, запускается обработчик.
func (r *KeyedRunner[K]) Go(key K, fn func()) {
	r.mu.Lock()
	if queue, busy := r.pending[key]; busy {
		r.pending[key] = append(queue, fn)
		r.mu.Unlock()
		return
	}
	r.pending[key] = nil
	r.mu.Unlock()

	r.spawn(func() { r.drain(key, fn) })
}

// drain выполняет задачи ключа, пока очередь не опустеет. panic в задаче не
// останавливает очередь.
func (r *KeyedRunner[K]) drain(key K, fn func()) {
	for {
		r.recovery.Run(fn)

		r.mu.Lock()
		queue := r.pending[key]
		if len(queue) == 0 {
			delete(r.pending, key)
			r.mu.Unlock()
			return
		}
		fn = queue[0]
		r.pending[key] = queue[1:]
		r.mu.Unlock()
	}
}

// Busy сообщает число ключей с незавершенными задачами.
func (r *KeyedRunner[K]) Busy() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
