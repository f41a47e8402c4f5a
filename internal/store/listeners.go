package store

import "sync"

// listeners is the per-origin registry of change callbacks shared by the
// backends.
type listeners struct {
	mu    sync.RWMutex
	next  int
	byKey map[string]map[int]ChangeFunc
}

func newListeners() *listeners {
	return &listeners{byKey: make(map[string]map[int]ChangeFunc)}
}

func (l *listeners) add(key string, fn ChangeFunc) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.next
	l.next++
	if l.byKey[key] == nil {
		l.byKey[key] = make(map[int]ChangeFunc)
	}
	l.byKey[key][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.byKey[key], id)
		})
	}
}

// dispatch calls every callback registered for c.Key outside the lock.
func (l *listeners) dispatch(c Change) {
	l.mu.RLock()
	fns := make([]ChangeFunc, 0, len(l.byKey[c.Key]))
	for _, fn := range l.byKey[c.Key] {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
