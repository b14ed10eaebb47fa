package intercept

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/slimtoolkit/hooksensor/pkg/acounter"
	"github.com/slimtoolkit/hooksensor/pkg/app/sensor/eventbuf"
	serr "github.com/slimtoolkit/hooksensor/pkg/errors"
	"github.com/slimtoolkit/hooksensor/pkg/hook"
	"github.com/slimtoolkit/hooksensor/pkg/system"
)

var ErrNoDescriber = errors.New("no call describer")

// Describer turns the intercepted call arguments into the record detail.
type Describer func(args ...any) (string, error)

// Matcher decides if an intercepted call gets the injected delay.
type Matcher func(args ...any) bool

// Stats are the interceptor counters. Drops and capture failures are
// not counted.
type Stats struct {
	Calls   uint64
	Delayed uint64
}

// Interceptor is the callback body run on every intercepted call.
// It never fails the call: capture problems are swallowed and the
// original function always runs with the arguments it was given.
type Interceptor struct {
	buffer   *eventbuf.Buffer
	describe Describer
	match    Matcher
	delay    time.Duration
	pid      int
	sleep    func(time.Duration)

	calls   acounter.Type
	delayed acounter.Type
}

type Option func(*Interceptor)

// WithDelay sleeps d before forwarding calls accepted by match.
func WithDelay(d time.Duration, match Matcher) Option {
	return func(i *Interceptor) {
		i.delay = d
		i.match = match
	}
}

// WithSleep replaces time.Sleep (tests).
func WithSleep(sleep func(time.Duration)) Option {
	return func(i *Interceptor) {
		if sleep != nil {
			i.sleep = sleep
		}
	}
}

func New(buffer *eventbuf.Buffer, describe Describer, opts ...Option) *Interceptor {
	i := &Interceptor{
		buffer:   buffer,
		describe: describe,
		pid:      os.Getpid(),
		sleep:    time.Sleep,
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Callback adapts the interceptor to the hook controller.
func (i *Interceptor) Callback() hook.Callback {
	return i.Handle
}

func (i *Interceptor) Handle(orig hook.Func, args ...any) any {
	i.calls.Inc()

	// A failed capture or a full buffer loses the record, nothing else.
	if rec, err := i.capture(args...); err == nil {
		i.buffer.Push(rec)
	}

	if i.delay > 0 && i.matches(args...) {
		i.delayed.Inc()
		i.sleep(i.delay)
	}

	return orig(args...)
}

func (i *Interceptor) capture(args ...any) (rec eventbuf.Record, err error) {
	const op = "intercept.capture"

	defer func() {
		if r := recover(); r != nil {
			err = serr.Capture(op, fmt.Errorf("panic: %v", r))
		}
	}()

	if i.describe == nil {
		return rec, serr.Capture(op, ErrNoDescriber)
	}

	detail, err := i.describe(args...)
	if err != nil {
		return rec, serr.Capture(op, err)
	}

	return eventbuf.NewRecord(i.pid, system.ThreadID(), detail), nil
}

func (i *Interceptor) matches(args ...any) (ok bool) {
	if i.match == nil {
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	return i.match(args...)
}

func (i *Interceptor) Stats() Stats {
	return Stats{
		Calls:   i.calls.Value(),
		Delayed: i.delayed.Value(),
	}
}
