package sessions

import (
	"context"
	"sync"
)

// Handle is the control surface a live call exposes to the tracker.
type Handle struct {
	Caller string
	Cancel func()
	Warn   func(code, message string) error
}

// Tracker keeps the set of live call sessions so shutdown can warn, cancel,
// and drain them. It also indexes sessions by caller: a new call from the
// same phone number preempts the stale session, which happens when a carrier
// drops a leg without a clean close.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedCall
	byCaller map[string]string
	wg       sync.WaitGroup
}

type trackedCall struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions: make(map[string]*trackedCall),
		byCaller: make(map[string]string),
	}
}

func (t *Tracker) Register(sessionID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedCall{handle: h}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedCall)
	}
	if t.byCaller == nil {
		t.byCaller = make(map[string]string)
	}
	old := t.sessions[sessionID]
	var stale *trackedCall
	var staleID string
	if h.Caller != "" {
		if prevID, ok := t.byCaller[h.Caller]; ok && prevID != sessionID {
			stale = t.sessions[prevID]
			staleID = prevID
		}
		t.byCaller[h.Caller] = sessionID
	}
	t.sessions[sessionID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(sessionID, old)
	}
	if stale != nil {
		if stale.handle.Cancel != nil {
			stale.handle.Cancel()
		}
		t.unregister(staleID, stale)
	}

	return func() { t.unregister(sessionID, entry) }
}

func (t *Tracker) unregister(sessionID string, entry *trackedCall) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.sessions != nil && t.sessions[sessionID] == entry {
			delete(t.sessions, sessionID)
			if c := entry.handle.Caller; c != "" && t.byCaller[c] == sessionID {
				delete(t.byCaller, c)
			}
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

// WarnAll pushes a warning frame to every live call, best effort.
func (t *Tracker) WarnAll(code, message string) (sent int) {
	if t == nil {
		return 0
	}

	var warns []func(code, message string) error
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Warn == nil {
			continue
		}
		warns = append(warns, entry.handle.Warn)
	}
	t.mu.Unlock()

	for _, warn := range warns {
		_ = warn(code, message)
		sent++
	}
	return sent
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered call has unregistered or the context
// expires.
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
