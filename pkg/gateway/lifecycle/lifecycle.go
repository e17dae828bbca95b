package lifecycle

import "sync/atomic"

// Lifecycle tracks whether the gateway is draining. While draining, the
// readiness probe fails and new call upgrades are refused; calls already in
// flight keep running until the session tracker drains them.
type Lifecycle struct {
	draining atomic.Bool
}

// SetDraining flips the gateway into (or out of) drain mode. Nil receivers
// are inert so handlers can run without a lifecycle in tests.
func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
