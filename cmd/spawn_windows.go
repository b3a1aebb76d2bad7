//go:build windows

package cmd

import "syscall"

// DETACHED_PROCESS is not exported by the syscall package.
const detachedProcess = 0x00000008

// detachedProcAttr detaches the background server from the launching
// console so it survives the console closing and never pops a window.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP | detachedProcess,
	}
}
