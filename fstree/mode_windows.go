//go:build windows

package fstree

import "os"

// posixMode reports 0 on non-POSIX hosts, per the wire contract.
func posixMode(os.FileInfo) uint32 { return 0 }
