//go:build !linux
// +build !linux

package system

import (
	"os"
	"runtime"
)

func newSystemInfo() SystemInfo {
	hostname, _ := os.Hostname()
	return SystemInfo{
		Sysname:  runtime.GOOS,
		Nodename: hostname,
		Machine:  runtime.GOARCH,
	}
}
