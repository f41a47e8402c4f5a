package store

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process shared store. Views opened on the same
// namespace see each other's writes, like tabs of one browser profile.
type MemoryBackend struct {
	mu     sync.RWMutex
	values map[string]map[string]string         // namespace -> key -> value
	views  map[string]map[*MemoryStore]struct{} // namespace -> open views
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		values: make(map[string]map[string]string),
		views:  make(map[string]map[*MemoryStore]struct{}),
	}
}

// Open satisfies Opener.
func (b *MemoryBackend) Open(_ context.Context, namespace, origin string) (Store, error) {
	return b.OpenView(namespace, origin), nil
}

// OpenView returns a view for origin and starts its event loop.
func (b *MemoryBackend) OpenView(namespace, origin string) *MemoryStore {
	s := &MemoryStore{
		backend:   b,
		namespace: namespace,
		origin:    origin,
		listeners: newListeners(),
		signal:    make(chan struct{}, 1),
		stop:      make(chan struct{}),
	}

	b.mu.Lock()
	if b.views[namespace] == nil {
		b.views[namespace] = make(map[*MemoryStore]struct{})
	}
	b.views[namespace][s] = struct{}{}
	b.mu.Unlock()

	s.wg.Add(1)
	go s.eventLoop()
	return s
}

func (b *MemoryBackend) write(from *MemoryStore, change Change) {
	b.mu.Lock()
	values := b.values[from.namespace]
	if values == nil {
		values = make(map[string]string)
		b.values[from.namespace] = values
	}
	if change.Removed {
		delete(values, change.Key)
	} else {
		values[change.Key] = change.Value
	}

	peers := make([]*MemoryStore, 0, len(b.views[from.namespace]))
	for view := range b.views[from.namespace] {
		if view.origin != from.origin {
			peers = append(peers, view)
		}
	}
	b.mu.Unlock()

	for _, peer := range peers {
		peer.enqueue(change)
	}
}

// MemoryStore is one origin's view of a MemoryBackend. Changes from other
// origins are queued without bound and delivered in order on a dedicated
// goroutine, so a writer never blocks on a slow reader.
type MemoryStore struct {
	backend   *MemoryBackend
	namespace string
	origin    string
	listeners *listeners

	qmu     sync.Mutex
	pending []Change
	signal  chan struct{}

	stop      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.backend.mu.RLock()
	defer s.backend.mu.RUnlock()

	value, ok := s.backend.values[s.namespace][key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.backend.write(s, Change{Key: key, Value: value})
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, key string) error {
	s.backend.write(s, Change{Key: key, Removed: true})
	return nil
}

func (s *MemoryStore) OnExternalChange(key string, fn ChangeFunc) (func(), error) {
	return s.listeners.add(key, fn), nil
}

func (s *MemoryStore) enqueue(change Change) {
	s.qmu.Lock()
	s.pending = append(s.pending, change)
	s.qmu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *MemoryStore) eventLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.signal:
			s.qmu.Lock()
			batch := s.pending
			s.pending = nil
			s.qmu.Unlock()

			for _, change := range batch {
				s.listeners.dispatch(change)
			}
		case <-s.stop:
			return
		}
	}
}

// Close detaches the view and waits for its event loop to finish.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.backend.mu.Lock()
		delete(s.backend.views[s.namespace], s)
		s.backend.mu.Unlock()

		close(s.stop)
		s.wg.Wait()
	})
	return nil
}
