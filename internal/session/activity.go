// Package session tracks cart activity, warns before an idle session runs
// out and clears the cart when it does.
package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultTimeout       = 30 * time.Minute
	DefaultWarnBefore    = 5 * time.Minute
	DefaultCheckInterval = 60 * time.Second
	DefaultDebounce      = 300 * time.Millisecond
)

// Activity is the per-tab session clock plus the expiry-warning flag.
type Activity struct {
	clock      clockwork.Clock
	timeout    time.Duration
	warnBefore time.Duration

	mu      sync.Mutex
	last    time.Time
	warning bool
}

func NewActivity(clock clockwork.Clock, timeout, warnBefore time.Duration) *Activity {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if warnBefore < 0 || warnBefore >= timeout {
		warnBefore = DefaultWarnBefore
	}
	return &Activity{
		clock:      clock,
		timeout:    timeout,
		warnBefore: warnBefore,
		last:       clock.Now(),
	}
}

// Touch marks the session active now.
func (a *Activity) Touch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last = a.clock.Now()
}

func (a *Activity) LastActivity() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Remaining is the time left before the session expires; <= 0 once expired.
func (a *Activity) Remaining() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.timeout - a.clock.Since(a.last)
}

func (a *Activity) WarnBefore() time.Duration {
	return a.warnBefore
}

// RaiseWarning sets the warning flag and reports whether it was newly set.
func (a *Activity) RaiseWarning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.warning {
		return false
	}
	a.warning = true
	return true
}

func (a *Activity) HideWarning() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.warning = false
}

func (a *Activity) WarningVisible() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.warning
}
