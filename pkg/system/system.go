package system

// SystemInfo describes the host the process runs on
type SystemInfo struct {
	Sysname  string
	Nodename string
	Release  string
	Version  string
	Machine  string
}

var defaultSysInfo = newSystemInfo()

func GetSystemInfo() SystemInfo {
	return defaultSysInfo
}
