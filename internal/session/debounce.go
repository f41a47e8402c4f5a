package session

import (
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// Debouncer drops calls that arrive within window of the last accepted one.
// It keeps its own timestamp: a rejected call never touches the session
// clock, and other cart activity never resets the window.
type Debouncer struct {
	clock   clockwork.Clock
	limiter *rate.Limiter
}

func NewDebouncer(clock clockwork.Clock, window time.Duration) *Debouncer {
	limit := rate.Inf
	if window > 0 {
		limit = rate.Every(window)
	}
	return &Debouncer{clock: clock, limiter: rate.NewLimiter(limit, 1)}
}

// Allow reports whether the call goes through and, if so, restarts the window.
func (d *Debouncer) Allow() bool {
	return d.limiter.AllowN(d.clock.Now(), 1)
}
