package inproc

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slimtoolkit/hooksensor/pkg/hook"
	"github.com/slimtoolkit/hooksensor/pkg/system"
)

func double(args ...any) any {
	return args[0].(int) * 2
}

func newModule(t *testing.T) (*Provider, *Module, hook.Func) {
	t.Helper()

	p := NewProvider()
	m := p.Load("mathlib")
	require.NoError(t, m.Export("Double", double))

	fn, err := m.Proc("Double")
	require.NoError(t, err)
	return p, m, fn
}

func TestProvider_Resolve(t *testing.T) {
	p, _, _ := newModule(t)

	addr, err := p.Resolve("mathlib", "Double")
	require.NoError(t, err)
	assert.NotZero(t, addr)

	_, err = p.Resolve("mathlib", "Triple")
	assert.ErrorIs(t, err, hook.ErrResolution)

	_, err = p.Resolve("nolib", "Double")
	assert.ErrorIs(t, err, hook.ErrResolution)
}

func TestModule_Export(t *testing.T) {
	_, m, _ := newModule(t)

	assert.ErrorIs(t, m.Export("Double", double), ErrExportExists)
	assert.ErrorIs(t, m.Export("Nil", nil), ErrNilFunc)

	_, err := m.Proc("Missing")
	assert.ErrorIs(t, err, ErrExportNotFound)
}

func TestProvider_HookLifecycle(t *testing.T) {
	p, m, fn := newModule(t)

	var intercepted atomic.Int64
	cb := func(orig hook.Func, args ...any) any {
		intercepted.Add(1)
		return orig(args...)
	}

	addr, err := p.Resolve("mathlib", "Double")
	require.NoError(t, err)

	h, err := p.Install(addr, cb)
	require.NoError(t, err)

	// Not armed until the thread scope is set.
	assert.Equal(t, 4, fn(2))
	assert.EqualValues(t, 0, intercepted.Load())

	require.NoError(t, p.SetThreadScope(h, nil))
	assert.Equal(t, 6, fn(3))
	assert.EqualValues(t, 1, intercepted.Load())

	_, err = p.Install(addr, cb)
	assert.ErrorIs(t, err, hook.ErrDoubleHook)

	require.NoError(t, p.Release(h))
	assert.Equal(t, 8, fn(4))
	assert.EqualValues(t, 1, intercepted.Load())
	assert.EqualValues(t, 3, m.Calls("Double"))

	assert.ErrorIs(t, p.Release(h), hook.ErrHookNotFound)
	assert.ErrorIs(t, p.SetThreadScope(h, nil), hook.ErrHookNotFound)
}

func TestProvider_ThreadExclusion(t *testing.T) {
	if system.ThreadID() == 0 {
		t.Skip("thread ids are not available on this platform")
	}

	p, _, fn := newModule(t)

	var intercepted atomic.Int64
	addr, err := p.Resolve("mathlib", "Double")
	require.NoError(t, err)
	h, err := p.Install(addr, func(orig hook.Func, args ...any) any {
		intercepted.Add(1)
		return orig(args...)
	})
	require.NoError(t, err)

	excludedReady := make(chan int)
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()

		excludedReady <- system.ThreadID()
		<-release

		for i := 0; i < 10; i++ {
			assert.Equal(t, 2*i, fn(i))
		}
	}()

	tid := <-excludedReady
	require.NoError(t, p.SetThreadScope(h, []int{tid}))
	close(release)
	<-done

	assert.EqualValues(t, 0, intercepted.Load(), "excluded thread must bypass the hook")

	// Any other thread is intercepted.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if system.ThreadID() != tid {
		fn(1)
		assert.EqualValues(t, 1, intercepted.Load())
	}
}

func TestProvider_ConcurrentCallsPassThrough(t *testing.T) {
	p, m, fn := newModule(t)

	addr, err := p.Resolve("mathlib", "Double")
	require.NoError(t, err)
	h, err := p.Install(addr, func(orig hook.Func, args ...any) any {
		return orig(args...)
	})
	require.NoError(t, err)
	require.NoError(t, p.SetThreadScope(h, nil))

	const workers, calls = 8, 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < calls; i++ {
				if got := fn(w + i); got != 2*(w+i) {
					t.Errorf("fn(%d) = %v", w+i, got)
					return
				}
			}
		}(w)
	}

	// Unhook while calls are in flight.
	require.NoError(t, p.Release(h))
	wg.Wait()

	assert.EqualValues(t, workers*calls, m.Calls("Double"))
}
