// Package sessions keeps the set of open live sessions so shutdown can warn, cancel and wait
// for them, and so a user's sessions can be ended together.
package sessions

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Handle struct {
	// UserID is empty for anonymous sessions.
	UserID string
	Cancel func()
	Warn   func(code, message string) error
}

// Info describes one open session.
type Info struct {
	ID        string
	UserID    string
	StartedAt time.Time
}

type Tracker struct {
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
	wg       sync.WaitGroup
}

type entry struct {
	handle    Handle
	startedAt time.Time
	once      sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now, sessions: make(map[string]*entry)}
}

// Register adds a session. Registering an id again replaces the earlier entry.
func (t *Tracker) Register(sessionID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	e := &entry{handle: h, startedAt: now()}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*entry)
	}
	old := t.sessions[sessionID]
	t.sessions[sessionID] = e
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(sessionID, old)
	}
	return func() { t.unregister(sessionID, e) }
}

func (t *Tracker) unregister(sessionID string, e *entry) {
	e.once.Do(func() {
		t.mu.Lock()
		if t.sessions[sessionID] == e {
			delete(t.sessions, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// List returns the open sessions, oldest first.
func (t *Tracker) List() []Info {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	out := make([]Info, 0, len(t.sessions))
	for id, e := range t.sessions {
		out = append(out, Info{ID: id, UserID: e.handle.UserID, StartedAt: e.startedAt})
	}
	t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (t *Tracker) handles(match func(Handle) bool) []Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Handle, 0, len(t.sessions))
	for _, e := range t.sessions {
		if match == nil || match(e.handle) {
			out = append(out, e.handle)
		}
	}
	return out
}

// WarnAll sends a best-effort warning to every session.
func (t *Tracker) WarnAll(code, message string) (sent int) {
	if t == nil {
		return 0
	}
	for _, h := range t.handles(nil) {
		if h.Warn == nil {
			continue
		}
		_ = h.Warn(code, message)
		sent++
	}
	return sent
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}
	return cancelHandles(t.handles(nil))
}

// CancelUser ends every session owned by userID.
func (t *Tracker) CancelUser(userID string) (canceled int) {
	if t == nil || userID == "" {
		return 0
	}
	return cancelHandles(t.handles(func(h Handle) bool { return h.UserID == userID }))
}

func cancelHandles(hs []Handle) (canceled int) {
	for _, h := range hs {
		if h.Cancel == nil {
			continue
		}
		h.Cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has unregistered. It reports false when ctx
// ends first.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
