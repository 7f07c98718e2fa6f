//go:build !windows

package store

import (
	"errors"
	"syscall"
)

// processAlive 用 0 号信号检查进程是否存在；EPERM 说明进程存在但不属于当前用户
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}
