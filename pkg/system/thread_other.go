//go:build !linux && !windows
// +build !linux,!windows

package system

// ThreadID is not available on this platform; 0 means "unknown" and
// disables thread-scoped exclusion.
func ThreadID() int {
	return 0
}
