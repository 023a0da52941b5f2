package lifecycle

import "sync/atomic"

// Lifecycle holds process readiness shared across handlers. A gateway is ready once its
// stores are wired and stops being ready when it starts draining for shutdown.
type Lifecycle struct {
	ready    atomic.Bool
	draining atomic.Bool
}

func (l *Lifecycle) MarkReady() {
	if l == nil {
		return
	}
	l.ready.Store(true)
}

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

// IsReady reports whether new traffic should be routed here. A nil Lifecycle is always ready.
func (l *Lifecycle) IsReady() bool {
	if l == nil {
		return true
	}
	return l.ready.Load() && !l.draining.Load()
}
