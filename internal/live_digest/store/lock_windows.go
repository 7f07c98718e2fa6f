//go:build windows

package store

// processAlive Windows 下不检查进程，残留锁只按 StaleLockAge 判定
func processAlive(int) bool { return true }
