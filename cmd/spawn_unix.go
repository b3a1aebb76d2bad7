//go:build !windows

package cmd

import "syscall"

// detachedProcAttr keeps the background server out of the launching
// terminal's process group so a later Ctrl+C does not reach it.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
