package session

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/notify"
	"github.com/jonboulle/clockwork"
)

type State string

const (
	StateActive  State = "active"
	StateWarning State = "warning"
	StateExpired State = "expired"
)

// Cart is what the guard needs from the cart engine.
type Cart interface {
	IsEmpty() bool
	// Expire clears a non-empty cart whose session is still idle and reports
	// whether it did.
	Expire() bool
}

// Guard checks the session on a fixed interval while Start..Close.
// An empty cart never warns and never expires.
type Guard struct {
	activity *Activity
	cart     Cart
	sink     notify.Sink
	clock    clockwork.Clock
	interval time.Duration
	log      *slog.Logger

	stop      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

func NewGuard(activity *Activity, cart Cart, sink notify.Sink, clock clockwork.Clock, interval time.Duration, log *slog.Logger) *Guard {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Guard{
		activity: activity,
		cart:     cart,
		sink:     sink,
		clock:    clock,
		interval: interval,
		log:      log,
		stop:     make(chan struct{}),
	}
}

// Start launches the periodic check. Calling it more than once is a no-op.
func (g *Guard) Start() {
	g.startOnce.Do(func() {
		g.wg.Add(1)
		go g.checkLoop()
	})
}

func (g *Guard) checkLoop() {
	defer g.wg.Done()

	ticker := g.clock.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			g.Check()
		case <-g.stop:
			return
		}
	}
}

// Check evaluates the session once and returns the resulting state.
func (g *Guard) Check() State {
	if g.cart.IsEmpty() {
		return StateActive
	}

	remaining := g.activity.Remaining()
	switch {
	case remaining <= 0:
		if !g.cart.Expire() {
			return StateActive
		}
		g.log.Info("session expired, cart cleared")
		g.sink.Notify(notify.Notification{
			Message:  "Your session has expired. Your cart has been cleared.",
			Type:     notify.Error,
			Duration: 5 * time.Second,
		})
		return StateExpired

	case remaining <= g.activity.WarnBefore():
		if g.activity.RaiseWarning() {
			minutes := int(math.Ceil(remaining.Minutes()))
			g.sink.Notify(notify.Notification{
				Message:  fmt.Sprintf("Your session will expire in %d minute(s). Extend it to keep your cart.", minutes),
				Type:     notify.Info,
				Duration: 10 * time.Second,
			})
		}
		return StateWarning

	default:
		g.activity.HideWarning()
		return StateActive
	}
}

// Extend restarts the session clock and hides the warning.
func (g *Guard) Extend() {
	g.activity.Touch()
	g.activity.HideWarning()
	g.sink.Notify(notify.Notification{Message: "Session extended", Type: notify.Success})
}

// Close stops the periodic check and waits for it to exit.
func (g *Guard) Close() {
	g.closeOnce.Do(func() {
		close(g.stop)
		g.wg.Wait()
	})
}
