//go:build unix && !linux

package tool

import "syscall"

// procAttr puts the child in its own process group so the whole tree can be
// killed.
func procAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
