package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

type GuardSettings struct {
	// FailureThreshold consecutive failures open the breaker
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before probing again
	OpenTimeout time.Duration
	// LoadTimeout bounds one snapshot load shared by concurrent callers
	LoadTimeout time.Duration
}

// Guarded shares one in-flight snapshot load between concurrent validations
// and stops calling a failing catalog until the breaker half-opens.
type Guarded struct {
	next        Catalog
	cb          *gobreaker.CircuitBreaker[Snapshot]
	sfg         singleflight.Group
	loadTimeout time.Duration
}

func NewGuarded(next Catalog, settings GuardSettings, log *slog.Logger) *Guarded {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.LoadTimeout <= 0 {
		settings.LoadTimeout = 5 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[Snapshot](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &Guarded{next: next, cb: cb, loadTimeout: settings.LoadTimeout}
}

func (g *Guarded) Snapshot(ctx context.Context) (Snapshot, error) {
	// the shared load must not die with whichever caller started it
	loadCtx := context.WithoutCancel(ctx)

	ch := g.sfg.DoChan("snapshot", func() (interface{}, error) {
		return g.cb.Execute(func() (Snapshot, error) {
			ctx, cancel := context.WithTimeout(loadCtx, g.loadTimeout)
			defer cancel()
			return g.next.Snapshot(ctx)
		})
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, fmt.Errorf("catalog snapshot: %w", res.Err)
		}
		return res.Val.(Snapshot), nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// State exposes the breaker state; /health reports it.
func (g *Guarded) State() gobreaker.State {
	return g.cb.State()
}
