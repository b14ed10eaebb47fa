package hook

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	serr "github.com/slimtoolkit/hooksensor/pkg/errors"
)

// State is the lifecycle state of a Handle
type State int

const (
	StateInstalling State = iota
	StateActive
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateActive:
		return "active"
	case StateRemoved:
		return "removed"
	}

	return "unknown"
}

// Handle is one active interception (the HookHandle).
type Handle struct {
	target   Target
	addr     Address
	callback Callback
	excluded []int

	ph    ProviderHandle
	state State
}

func (h *Handle) Target() Target {
	return h.target
}

func (h *Handle) ExcludedThreads() []int {
	return append([]int(nil), h.excluded...)
}

// Controller installs and removes hooks through a Provider.
// It keeps at most one active Handle per target.
type Controller struct {
	provider Provider

	mu     sync.Mutex
	active map[Target]*Handle
}

func NewController(provider Provider) *Controller {
	return &Controller{
		provider: provider,
		active:   map[Target]*Handle{},
	}
}

// Install redirects target to cb for every thread not in excludedThreads.
// Any failure is a HookInstallError and leaves no provider state behind.
func (c *Controller) Install(target Target, cb Callback, excludedThreads []int) (*Handle, error) {
	const op = "hook.Controller.Install"

	if c.provider == nil {
		return nil, serr.HookInstall(op, ErrNoProvider)
	}

	if target.IsZero() {
		return nil, serr.HookInstall(op, ErrEmptyTarget)
	}

	if cb == nil {
		return nil, serr.HookInstall(op, ErrNilCallback)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, found := c.active[target]; found {
		return nil, serr.HookInstall(op, errors.Wrap(ErrDoubleHook, target.String()))
	}

	h := &Handle{
		target:   target,
		callback: cb,
		excluded: append([]int(nil), excludedThreads...),
		state:    StateInstalling,
	}

	addr, err := c.provider.Resolve(target.Module, target.Export)
	if err != nil {
		return nil, serr.HookInstall(op+"/provider.Resolve", err)
	}
	h.addr = addr

	ph, err := c.provider.Install(addr, cb)
	if err != nil {
		return nil, serr.HookInstall(op+"/provider.Install", err)
	}
	h.ph = ph

	if err := c.provider.SetThreadScope(ph, h.excluded); err != nil {
		if rerr := c.provider.Release(ph); rerr != nil {
			log.WithError(rerr).Warnf("hook: release after failed thread scope (%s)", target)
		}
		return nil, serr.HookInstall(op+"/provider.SetThreadScope", err)
	}

	h.state = StateActive
	c.active[target] = h

	log.WithFields(log.Fields{
		"target":   target.String(),
		"excluded": h.excluded,
	}).Debug("hook: installed")

	return h, nil
}

// Remove restores the original function. A Handle is removed once;
// later calls report ErrNotActive and leave the provider untouched.
func (c *Controller) Remove(h *Handle) error {
	if h == nil {
		return ErrHookNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if h.state != StateActive {
		return ErrNotActive
	}

	if current, found := c.active[h.target]; !found || current != h {
		return ErrHookNotFound
	}

	// The handle leaves the active set even when Release fails.
	h.state = StateRemoved
	delete(c.active, h.target)

	if err := c.provider.Release(h.ph); err != nil {
		return errors.Wrapf(err, "release %s", h.target)
	}

	log.WithField("target", h.target.String()).Debug("hook: removed")
	return nil
}

// Active reports whether target currently has an installed hook.
func (c *Controller) Active(target Target) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, found := c.active[target]
	return found
}

// State returns the handle state.
func (c *Controller) State(h *Handle) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return h.state
}
