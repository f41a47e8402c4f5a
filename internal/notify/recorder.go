package notify

import "sync"

// Recorder buffers the most recent notifications until they are drained.
// The HTTP surface drains one per tab so the page can render toasts.
type Recorder struct {
	mu    sync.Mutex
	limit int
	items []Notification
}

func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 50
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, n)
	if over := len(r.items) - r.limit; over > 0 {
		r.items = append(r.items[:0:0], r.items[over:]...)
	}
}

// Drain returns buffered notifications oldest first and empties the buffer.
func (r *Recorder) Drain() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	items := r.items
	r.items = nil
	return items
}

// Peek returns a copy of the buffer without draining it.
func (r *Recorder) Peek() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Notification(nil), r.items...)
}
