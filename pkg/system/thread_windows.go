//go:build windows
// +build windows

package system

import "golang.org/x/sys/windows"

// ThreadID returns the OS thread id of the calling thread.
// Callers that need a stable id must hold runtime.LockOSThread.
func ThreadID() int {
	return int(windows.GetCurrentThreadId())
}
