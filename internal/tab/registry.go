package tab

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	DefaultIdleTimeout   = 2 * time.Hour
	DefaultSweepInterval = 5 * time.Minute
)

type entry struct {
	tab      *Tab
	lastSeen time.Time
}

// Registry owns every open tab. Tabs that see no request for IdleTimeout
// are closed by a background sweep, as a browser tab may vanish without
// saying goodbye.
type Registry struct {
	deps        Deps
	settings    Settings
	clock       clockwork.Clock
	idleTimeout time.Duration
	log         *slog.Logger

	mu   sync.RWMutex
	tabs map[string]*entry

	stopSweep chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewRegistry(deps Deps, settings Settings, idleTimeout, sweepInterval time.Duration) *Registry {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}

	r := &Registry{
		deps:        deps,
		settings:    settings,
		clock:       deps.Clock,
		idleTimeout: idleTimeout,
		log:         deps.Log,
		tabs:        make(map[string]*entry),
		stopSweep:   make(chan struct{}),
	}

	r.wg.Add(1)
	go r.sweepLoop(sweepInterval)

	return r
}

func (r *Registry) sweepLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.closeIdle()
		case <-r.stopSweep:
			return
		}
	}
}

// closeIdle closes tabs not seen within the idle timeout
func (r *Registry) closeIdle() {
	now := r.clock.Now()

	r.mu.Lock()
	var idle []*Tab
	for id, e := range r.tabs {
		if now.Sub(e.lastSeen) >= r.idleTimeout {
			idle = append(idle, e.tab)
			delete(r.tabs, id)
		}
	}
	r.mu.Unlock()

	for _, t := range idle {
		if err := t.Close(); err != nil {
			r.log.Warn("close idle tab failed", slog.String("tab_id", t.ID), slog.Any("error", err))
			continue
		}
		r.log.Info("idle tab closed", slog.String("tab_id", t.ID), slog.String("user_id", t.UserID))
	}
}

// Open starts a new tab for userID. Tabs of one user share a store
// namespace and so stay in sync.
func (r *Registry) Open(ctx context.Context, userID string) (*Tab, error) {
	id := uuid.NewString()

	t, err := New(ctx, userID, id, r.deps, r.settings)
	if err != nil {
		return nil, err
	}
	if err := t.Start(ctx); err != nil {
		return nil, errors.Join(err, t.Close())
	}

	r.mu.Lock()
	r.tabs[id] = &entry{tab: t, lastSeen: r.clock.Now()}
	r.mu.Unlock()

	r.log.Info("tab opened", slog.String("tab_id", id), slog.String("user_id", userID))
	return t, nil
}

// Get returns the tab and marks it as seen. A tab opened by another user
// yields ErrForbidden.
func (r *Registry) Get(userID, tabID string) (*Tab, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.tabs[tabID]
	if !ok {
		return nil, ErrTabNotFound
	}
	if e.tab.UserID != userID {
		return nil, ErrForbidden
	}
	e.lastSeen = r.clock.Now()
	return e.tab, nil
}

func (r *Registry) Close(userID, tabID string) error {
	r.mu.Lock()
	e, ok := r.tabs[tabID]
	switch {
	case !ok:
		r.mu.Unlock()
		return ErrTabNotFound
	case e.tab.UserID != userID:
		r.mu.Unlock()
		return ErrForbidden
	}
	delete(r.tabs, tabID)
	r.mu.Unlock()

	r.log.Info("tab closed", slog.String("tab_id", tabID), slog.String("user_id", userID))
	return e.tab.Close()
}

// Len is the number of open tabs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tabs)
}

// CloseAll stops the sweep and closes every open tab.
func (r *Registry) CloseAll() error {
	r.closeOnce.Do(func() {
		close(r.stopSweep)
		r.wg.Wait()
	})

	r.mu.Lock()
	tabs := r.tabs
	r.tabs = make(map[string]*entry)
	r.mu.Unlock()

	var errs []error
	for _, e := range tabs {
		errs = append(errs, e.tab.Close())
	}
	return errors.Join(errs...)
}
