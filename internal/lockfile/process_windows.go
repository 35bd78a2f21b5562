//go:build windows

package lockfile

import "golang.org/x/sys/windows"

// stillActive is the exit code Windows reports for a live process
const stillActive = 259

// isProcessRunning reports whether pid refers to a live process
func isProcessRunning(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if windows.GetExitCodeProcess(h, &code) != nil {
		return false
	}
	return code == stillActive
}
