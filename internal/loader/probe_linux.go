//go:build linux

package loader

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// probeUserfaultfd checks that the userfaultfd(2) syscall is usable on
// this host before Execute commits to it. The common failure is
// vm.unprivileged_userfaultfd=0 without CAP_SYS_PTRACE, grounded in the
// same check dsmmcken-dh-cli's ProbeUffd performs.
func probeUserfaultfd() error {
	fd, _, errno := unix.Syscall(unix.SYS_USERFAULTFD, unix.O_CLOEXEC, 0, 0)
	if errno != 0 {
		return fmt.Errorf("userfaultfd(2) unavailable: %w (is vm.unprivileged_userfaultfd set, or CAP_SYS_PTRACE held?)", errno)
	}
	unix.Close(int(fd))
	return nil
}
