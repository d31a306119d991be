package application

import (
	"sync"
	"time"
)

const DefaultFallbackInterval = 10 * time.Second

// Globals holds the process-wide settings reachable through the attribute
// protocol. Changes are visible to every connection and to the monitor.
type Globals struct {
	mu               sync.RWMutex
	siteName         string
	debug            bool
	fallbackInterval int
	onDebugChange    func(bool)
}

type GlobalsOption func(*Globals)

// WithDebugHook is called every time the debug flag is written.
func WithDebugHook(fn func(bool)) GlobalsOption {
	return func(g *Globals) { g.onDebugChange = fn }
}

func NewGlobals(siteName string, debug bool, opts ...GlobalsOption) *Globals {
	g := &Globals{
		siteName:         siteName,
		debug:            debug,
		fallbackInterval: int(DefaultFallbackInterval / time.Second),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Globals) SiteName() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.siteName
}

func (g *Globals) SetSiteName(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.siteName = name
}

func (g *Globals) Debug() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.debug
}

func (g *Globals) SetDebug(debug bool) {
	g.mu.Lock()
	g.debug = debug
	hook := g.onDebugChange
	g.mu.Unlock()

	if hook != nil {
		hook(debug)
	}
}

func (g *Globals) FallbackInterval() time.Duration {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return time.Duration(g.fallbackInterval) * time.Second
}

// SetFallbackInterval stores the interval in whole seconds, clamped to at
// least one second.
func (g *Globals) SetFallbackInterval(seconds int) {
	if seconds < 1 {
		seconds = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fallbackInterval = seconds
}
