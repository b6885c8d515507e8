package session

import (
	"sync"

	"github.com/ctralie/aruco2-fast/pkg/core"
)

// Context holds the current tracking session state
type Context struct {
	mu      sync.RWMutex
	Session *core.Session
	active  bool
}

// NewContext creates a new Context with default values
func NewContext() *Context {
	return &Context{
		Session: &core.Session{Name: "No session active"},
	}
}

// Get returns the current session
func (sc *Context) Get() *core.Session {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.Session
}

// Set sets the current session and marks it active
func (sc *Context) Set(session *core.Session) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.Session = session
	sc.active = true
}

// Active reports whether a session is running
func (sc *Context) Active() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.active
}

// End marks the current session finished, keeping it readable for
// end-of-session bookkeeping.
func (sc *Context) End() {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.active = false
}
