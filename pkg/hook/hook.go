// Package hook owns the lifetime of function interceptions.
//
// The low-level redirection is done by a Provider (see pkg/hook/inproc for the
// in-process one). The Controller is the only thing that talks to it: it
// resolves the target, installs the callback, scopes the hook to every thread
// except the excluded ones, and hands back a Handle that must be removed
// exactly once.
package hook

import (
	"errors"
	"fmt"
)

// Provider errors
var (
	ErrResolution    = errors.New("target not resolved")
	ErrDoubleHook    = errors.New("double hook")
	ErrHookNotFound  = errors.New("hook not found")
	ErrNotActive     = errors.New("hook is not active")
	ErrNilCallback   = errors.New("nil hook callback")
	ErrEmptyTarget   = errors.New("empty hook target")
	ErrNoProvider    = errors.New("no hook provider")
	ErrProviderState = errors.New("provider rejected the request")
)

// Func is the shape every interceptable function is adapted to.
type Func func(args ...any) any

// Callback runs in place of a hooked function. orig reaches the real
// implementation and must be called for the target to keep working.
type Callback func(orig Func, args ...any) any

// Address identifies a resolved function inside a provider.
type Address uintptr

// ProviderHandle identifies an installed redirection inside a provider.
type ProviderHandle uint64

// Target names the function to intercept.
type Target struct {
	Module string `json:"module"`
	Export string `json:"export"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s!%s", t.Module, t.Export)
}

func (t Target) IsZero() bool {
	return t.Module == "" || t.Export == ""
}

// Provider is the low-level redirection mechanism.
type Provider interface {
	Resolve(module, export string) (Address, error)
	Install(addr Address, cb Callback) (ProviderHandle, error)
	// SetThreadScope activates the hook for every thread except the excluded ones.
	SetThreadScope(h ProviderHandle, excludedThreads []int) error
	Release(h ProviderHandle) error
}
