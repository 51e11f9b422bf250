//go:build linux

package proctitle

import (
	"errors"
	"os"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// The kernel truncates a thread's comm to 15 bytes plus the NUL.
const commLimit = 15

// Set renames the process via PR_SET_NAME so ps and top show the cluster
// role instead of the binary name. os.Args[0] is rewritten too for tools
// that read the command line rather than comm.
func Set(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return errors.New("empty process title")
	}
	if len(os.Args) > 0 {
		os.Args[0] = title
	}

	name := make([]byte, commLimit+1)
	copy(name, title)
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&name[0])), 0, 0, 0)
}
