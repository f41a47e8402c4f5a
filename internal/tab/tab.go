// Package tab composes one open storefront tab: its store view, cart
// engine, session guard and cross-tab synchronizer.
package tab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/cart"
	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/notify"
	"github.com/fjod/go_cart/storefront/internal/session"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/fjod/go_cart/storefront/internal/tabsync"
	"github.com/jonboulle/clockwork"
)

var (
	ErrTabNotFound = errors.New("tab not found")
	ErrForbidden   = errors.New("tab belongs to another user")
)

// SinkFactory returns the outbound sink for one tab, e.g. KafkaSink.For.
type SinkFactory func(userID, tabID string) notify.Sink

type Settings struct {
	Keys               store.Keys
	SessionTimeout     time.Duration
	WarnBefore         time.Duration
	CheckInterval      time.Duration
	Debounce           time.Duration
	PersistTimeout     time.Duration
	NotificationBuffer int
}

type Deps struct {
	Opener  store.Opener
	Catalog catalog.Catalog
	Sinks   SinkFactory
	Clock   clockwork.Clock
	Log     *slog.Logger
}

type Tab struct {
	ID     string
	UserID string

	Engine        *cart.Engine
	Guard         *session.Guard
	Activity      *session.Activity
	Notifications *notify.Recorder

	kv          store.Store
	collections *store.Collections
	sync        *tabsync.Synchronizer
	log         *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// New opens the tab's store view and builds its components. Nothing runs
// until Start.
func New(ctx context.Context, userID, tabID string, deps Deps, settings Settings) (*Tab, error) {
	kv, err := deps.Opener(ctx, userID, tabID)
	if err != nil {
		return nil, fmt.Errorf("open store for tab %s: %w", tabID, err)
	}

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("user_id", userID), slog.String("tab_id", tabID))

	keys := settings.Keys
	if keys.Cart == "" {
		keys = store.DefaultKeys()
	}

	recorder := notify.NewRecorder(settings.NotificationBuffer)
	var sink notify.Sink = recorder
	if deps.Sinks != nil {
		sink = notify.Fanout{recorder, deps.Sinks(userID, tabID)}
	}

	collections := store.NewCollections(kv, keys, log)
	activity := session.NewActivity(clock, settings.SessionTimeout, settings.WarnBefore)
	engine := cart.NewEngine(cart.Options{
		Persister:      collections,
		Activity:       activity,
		Debouncer:      session.NewDebouncer(clock, settings.Debounce),
		Catalog:        deps.Catalog,
		Sink:           sink,
		Log:            log,
		PersistTimeout: settings.PersistTimeout,
	})

	return &Tab{
		ID:            tabID,
		UserID:        userID,
		Engine:        engine,
		Guard:         session.NewGuard(activity, engine, sink, clock, settings.CheckInterval, log),
		Activity:      activity,
		Notifications: recorder,
		kv:            kv,
		collections:   collections,
		sync:          tabsync.New(kv, keys, engine, log),
		log:           log,
	}, nil
}

// Start subscribes to other tabs' writes, loads the persisted collections
// and starts the session guard. Subscribing first means a write racing
// the load is either read by it or delivered afterwards.
func (t *Tab) Start(ctx context.Context) error {
	if err := t.sync.Start(); err != nil {
		return err
	}

	t.Engine.ReplaceCart(t.collections.LoadCart(ctx))
	t.Engine.ReplaceWishlist(t.collections.LoadWishlist(ctx))
	t.Guard.Start()

	t.log.Debug("tab started", slog.Int("cart_lines", len(t.Engine.CartItems())))
	return nil
}

// Degraded reports whether the tab's storage failed and it now runs in
// memory only.
func (t *Tab) Degraded() bool {
	return t.collections.Degraded()
}

// Close stops the guard and the synchronizer and releases the store view.
func (t *Tab) Close() error {
	t.closeOnce.Do(func() {
		t.Guard.Close()
		t.sync.Close()
		if err := t.kv.Close(); err != nil {
			t.closeErr = fmt.Errorf("close store for tab %s: %w", t.ID, err)
		}
	})
	return t.closeErr
}
