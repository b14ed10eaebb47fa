package system

import "golang.org/x/sys/unix"

func newSystemInfo() SystemInfo {
	var sysInfo SystemInfo
	var unameInfo unix.Utsname

	if err := unix.Uname(&unameInfo); err != nil {
		return sysInfo
	}

	sysInfo.Sysname = unix.ByteSliceToString(unameInfo.Sysname[:])
	sysInfo.Nodename = unix.ByteSliceToString(unameInfo.Nodename[:])
	sysInfo.Machine = unix.ByteSliceToString(unameInfo.Machine[:])
	//kernel info
	sysInfo.Release = unix.ByteSliceToString(unameInfo.Release[:])
	sysInfo.Version = unix.ByteSliceToString(unameInfo.Version[:])

	return sysInfo
}
