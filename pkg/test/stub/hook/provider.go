package hook

import (
	"sync"

	"github.com/slimtoolkit/hooksensor/pkg/hook"
)

// ProviderStub implements hook.Provider and records every call.
// Set the *Err fields to make the matching operation fail.
type ProviderStub struct {
	mu sync.Mutex

	ResolveErr error
	InstallErr error
	ScopeErr   error
	ReleaseErr error

	Resolved []hook.Target
	Scopes   map[hook.ProviderHandle][]int
	Released []hook.ProviderHandle
	Live     map[hook.ProviderHandle]hook.Callback

	next hook.ProviderHandle
}

var _ hook.Provider = &ProviderStub{}

func NewProvider() *ProviderStub {
	return &ProviderStub{
		Scopes: map[hook.ProviderHandle][]int{},
		Live:   map[hook.ProviderHandle]hook.Callback{},
	}
}

func (p *ProviderStub) Resolve(module, export string) (hook.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Resolved = append(p.Resolved, hook.Target{Module: module, Export: export})
	if p.ResolveErr != nil {
		return 0, p.ResolveErr
	}

	return hook.Address(0x1000 + len(p.Resolved)), nil
}

func (p *ProviderStub) Install(addr hook.Address, cb hook.Callback) (hook.ProviderHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.InstallErr != nil {
		return 0, p.InstallErr
	}

	p.next++
	p.Live[p.next] = cb
	return p.next, nil
}

func (p *ProviderStub) SetThreadScope(h hook.ProviderHandle, excludedThreads []int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ScopeErr != nil {
		return p.ScopeErr
	}

	p.Scopes[h] = append([]int(nil), excludedThreads...)
	return nil
}

func (p *ProviderStub) Release(h hook.ProviderHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Released = append(p.Released, h)
	delete(p.Live, h)
	return p.ReleaseErr
}

// LiveCount returns the number of installed, unreleased hooks.
func (p *ProviderStub) LiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.Live)
}

// ReleaseCount returns how many times Release was called.
func (p *ProviderStub) ReleaseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.Released)
}
