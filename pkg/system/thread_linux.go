//go:build linux
// +build linux

package system

import "golang.org/x/sys/unix"

// ThreadID returns the OS thread id of the calling thread.
// Callers that need a stable id must hold runtime.LockOSThread.
func ThreadID() int {
	return unix.Gettid()
}
