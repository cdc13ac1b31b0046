//go:build !windows

package fstree

import (
	"os"
	"syscall"
)

// posixMode returns the low 12 bits of the POSIX permission set,
// including setuid/setgid/sticky, straight from the raw stat mode.
func posixMode(info os.FileInfo) uint32 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return uint32(st.Mode) & 0o7777
	}
	return uint32(info.Mode().Perm())
}
