// Package inproc is a hook provider for functions that live in the current
// process and are reached through a module export table, the way code
// calls a shared library through its resolved procedure addresses.
//
// Host code resolves an export once with Module.Proc and calls the returned
// function. Installing a hook swaps the dispatch behind that function, so
// already-resolved callers are intercepted too.
package inproc

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/slimtoolkit/hooksensor/pkg/hook"
	"github.com/slimtoolkit/hooksensor/pkg/system"
)

var (
	ErrModuleNotFound = errors.New("module not found")
	ErrExportNotFound = errors.New("export not found")
	ErrNilFunc        = errors.New("nil export function")
	ErrExportExists   = errors.New("export already registered")
)

type binding struct {
	handle   hook.ProviderHandle
	callback hook.Callback
	excluded map[int]struct{}
	// false until the thread scope is set: a fresh hook intercepts no thread
	armed bool
}

type export struct {
	name string
	addr hook.Address
	orig hook.Func

	current atomic.Pointer[binding]
	calls   atomic.Uint64
}

func (e *export) invoke(args ...any) any {
	e.calls.Add(1)

	b := e.current.Load()
	if b == nil || !b.armed {
		return e.orig(args...)
	}

	if len(b.excluded) > 0 {
		if _, skip := b.excluded[system.ThreadID()]; skip {
			return e.orig(args...)
		}
	}

	return b.callback(e.orig, args...)
}

// Module is a named export table.
type Module struct {
	name     string
	provider *Provider

	mu      sync.RWMutex
	exports map[string]*export
}

func (m *Module) Name() string {
	return m.name
}

// Export registers a function under name.
func (m *Module) Export(name string, fn hook.Func) error {
	if fn == nil {
		return ErrNilFunc
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, found := m.exports[name]; found {
		return errors.Wrapf(ErrExportExists, "%s!%s", m.name, name)
	}

	e := &export{
		name: name,
		orig: fn,
		addr: m.provider.nextAddress(),
	}
	m.exports[name] = e
	m.provider.register(e)
	return nil
}

// Proc returns the callable entry point of an export.
func (m *Module) Proc(name string) (hook.Func, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, found := m.exports[name]
	if !found {
		return nil, errors.Wrapf(ErrExportNotFound, "%s!%s", m.name, name)
	}

	return e.invoke, nil
}

// Calls returns how many times an export was invoked, hooked or not.
func (m *Module) Calls(name string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, found := m.exports[name]; found {
		return e.calls.Load()
	}

	return 0
}

func (m *Module) lookup(name string) (*export, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, found := m.exports[name]
	return e, found
}

// Provider implements hook.Provider over in-process modules.
type Provider struct {
	mu         sync.Mutex
	modules    map[string]*Module
	byAddr     map[hook.Address]*export
	byHandle   map[hook.ProviderHandle]*export
	lastAddr   hook.Address
	lastHandle hook.ProviderHandle
}

var _ hook.Provider = (*Provider)(nil)

func NewProvider() *Provider {
	return &Provider{
		modules:  map[string]*Module{},
		byAddr:   map[hook.Address]*export{},
		byHandle: map[hook.ProviderHandle]*export{},
	}
}

// Load returns the named module, creating an empty one on first use.
func (p *Provider) Load(name string) *Module {
	p.mu.Lock()
	defer p.mu.Unlock()

	if m, found := p.modules[name]; found {
		return m
	}

	m := &Module{
		name:     name,
		provider: p,
		exports:  map[string]*export{},
	}
	p.modules[name] = m
	return m
}

func (p *Provider) nextAddress() hook.Address {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastAddr += 0x10
	return p.lastAddr
}

func (p *Provider) register(e *export) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.byAddr[e.addr] = e
}

func (p *Provider) Resolve(module, name string) (hook.Address, error) {
	p.mu.Lock()
	m, found := p.modules[module]
	p.mu.Unlock()

	if !found {
		return 0, errors.Wrapf(hook.ErrResolution, "%s: %v", module, ErrModuleNotFound)
	}

	e, found := m.lookup(name)
	if !found {
		return 0, errors.Wrapf(hook.ErrResolution, "%s!%s: %v", module, name, ErrExportNotFound)
	}

	return e.addr, nil
}

func (p *Provider) Install(addr hook.Address, cb hook.Callback) (hook.ProviderHandle, error) {
	if cb == nil {
		return 0, hook.ErrNilCallback
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, found := p.byAddr[addr]
	if !found {
		return 0, errors.Wrapf(hook.ErrResolution, "address %#x", uintptr(addr))
	}

	if e.current.Load() != nil {
		return 0, errors.Wrapf(hook.ErrDoubleHook, "address %#x", uintptr(addr))
	}

	p.lastHandle++
	h := p.lastHandle
	e.current.Store(&binding{
		handle:   h,
		callback: cb,
	})
	p.byHandle[h] = e

	return h, nil
}

func (p *Provider) SetThreadScope(h hook.ProviderHandle, excludedThreads []int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, found := p.byHandle[h]
	if !found {
		return hook.ErrHookNotFound
	}

	prev := e.current.Load()
	if prev == nil || prev.handle != h {
		return hook.ErrHookNotFound
	}

	excluded := make(map[int]struct{}, len(excludedThreads))
	for _, tid := range excludedThreads {
		excluded[tid] = struct{}{}
	}

	e.current.Store(&binding{
		handle:   h,
		callback: prev.callback,
		excluded: excluded,
		armed:    true,
	})

	return nil
}

func (p *Provider) Release(h hook.ProviderHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	e, found := p.byHandle[h]
	if !found {
		return hook.ErrHookNotFound
	}

	delete(p.byHandle, h)
	if b := e.current.Load(); b != nil && b.handle == h {
		e.current.Store(nil)
	}

	return nil
}
