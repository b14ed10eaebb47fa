package system

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSystemInfo(t *testing.T) {
	info := GetSystemInfo()
	assert.NotEmpty(t, info.Sysname)
	assert.NotEmpty(t, info.Machine)
}

func TestThreadID(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "windows" {
		assert.Zero(t, ThreadID())
		return
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	first := ThreadID()
	assert.NotZero(t, first)
	assert.Equal(t, first, ThreadID())
}
