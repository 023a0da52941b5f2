package lifecycle

import "testing"

func TestLifecycle_ReadyUntilDraining(t *testing.T) {
	var l Lifecycle
	if l.IsReady() {
		t.Fatalf("fresh lifecycle should not be ready")
	}
	l.MarkReady()
	if !l.IsReady() {
		t.Fatalf("expected ready after MarkReady")
	}
	l.SetDraining(true)
	if l.IsReady() || !l.IsDraining() {
		t.Fatalf("draining lifecycle must not be ready")
	}
}

func TestLifecycle_NilIsReadyAndNotDraining(t *testing.T) {
	var l *Lifecycle
	l.MarkReady()
	l.SetDraining(true)
	if !l.IsReady() || l.IsDraining() {
		t.Fatalf("nil lifecycle: ready=%v draining=%v", l.IsReady(), l.IsDraining())
	}
}
