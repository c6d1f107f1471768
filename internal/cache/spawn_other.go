//go:build !unix

package cache

import "syscall"

func detachedProcAttr() *syscall.SysProcAttr {
	return nil
}
