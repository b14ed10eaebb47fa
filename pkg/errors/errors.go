package errors

import (
	"fmt"
	"runtime"
)

// Error kinds
const (
	KindConnection  = "connection"
	KindHookInstall = "hook.install"
	KindCapture     = "capture"
)

// Kind-only sentinels for errors.Is matching
var (
	ErrConnection  = &SensorError{Kind: KindConnection}
	ErrHookInstall = &SensorError{Kind: KindHookInstall}
	ErrCapture     = &SensorError{Kind: KindCapture}
)

type SensorError struct {
	Op      string        `json:"op"`
	Kind    string        `json:"kind"`
	Next    *SensorError  `json:"next,omitempty"`
	Wrapped *WrappedError `json:"wrapped,omitempty"`

	cause error
}

type WrappedError struct {
	Type string `json:"type"`
	Info string `json:"info"`
	File string `json:"file"`
	Line int    `json:"line"`
}

func (e *SensorError) Error() string {
	errStr := ""
	if e.Next != nil {
		errStr = fmt.Sprintf(",Next:%s", e.Next.Error())
	}
	if e.Wrapped != nil {
		errStr = fmt.Sprintf("%s,Wrapped:{Type=%s,Info=%s,Line:%d,File:%s}", errStr, e.Wrapped.Type, e.Wrapped.Info, e.Wrapped.Line, e.Wrapped.File)
	}

	return fmt.Sprintf("SensorError{Op:%s,Kind:%s%s}", e.Op, e.Kind, errStr)
}

// Is matches any SensorError of the same kind when target is a
// kind-only sentinel (no Op).
func (e *SensorError) Is(target error) bool {
	t, ok := target.(*SensorError)
	if !ok {
		return false
	}

	if t.Op == "" {
		return t.Kind == e.Kind
	}

	return t == e
}

func (e *SensorError) Unwrap() error {
	if e.Next != nil {
		return e.Next
	}

	return e.cause
}

func SE(op string, kind string, err error) *SensorError {
	e := &SensorError{
		Op:   op,
		Kind: kind,
	}

	if err == nil {
		return e
	}

	if next, ok := err.(*SensorError); ok {
		e.Next = next
	} else {
		e.cause = err
		e.Wrapped = &WrappedError{
			Type: fmt.Sprintf("%T", err),
			Info: err.Error(),
		}

		if _, file, line, ok := runtime.Caller(1); ok {
			e.Wrapped.File = file
			e.Wrapped.Line = line
		}
	}

	return e
}

// Connection reports a failure to establish or use the host channel.
func Connection(op string, err error) *SensorError {
	return SE(op, KindConnection, err)
}

// HookInstall reports a target function that could not be intercepted.
func HookInstall(op string, err error) *SensorError {
	return SE(op, KindHookInstall, err)
}

// Capture reports a failure while building an event record.
func Capture(op string, err error) *SensorError {
	return SE(op, KindCapture, err)
}

func Drain(ch <-chan error) (arr []error) {
	for {
		select {
		case e := <-ch:
			arr = append(arr, e)
		default:
			return arr
		}
	}
}
