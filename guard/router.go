package guard

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Router tracks the current location and runs the guard before each move.
// It satisfies session.Navigator.
type Router struct {
	guard *Guard

	lock      sync.RWMutex
	current   string
	listeners []func(Decision)
}

func NewRouter(g *Guard) *Router {
	return &Router{guard: g}
}

// OnNavigate registers fn to run after every completed navigation.
func (r *Router) OnNavigate(fn func(Decision)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Push navigates to path, or to wherever the guard redirects it.
func (r *Router) Push(_ context.Context, path string) {
	d := r.guard.Check(path)

	r.lock.Lock()
	r.current = d.Path
	listeners := append([]func(Decision){}, r.listeners...)
	r.lock.Unlock()

	if d.Action != Proceed {
		log.Debug().Str("requested", path).Str("redirect", d.Path).Stringer("action", d.Action).Msg("navigation redirected")
	}
	for _, fn := range listeners {
		fn(d)
	}
}

func (r *Router) Current() string {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return r.current
}
