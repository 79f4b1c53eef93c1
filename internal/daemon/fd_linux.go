package daemon

import (
	"math"

	"golang.org/x/sys/unix"
)

// dupTo makes newfd a copy of oldfd. Dup3 is used since linux/arm64 has no dup2.
func dupTo(oldfd, newfd int) error {
	if oldfd == newfd {
		return nil
	}
	return unix.Dup3(oldfd, newfd, 0)
}

// closeOnExecFrom needs close_range(2) with CLOSE_RANGE_CLOEXEC, Linux 5.11
// or later. Older kernels return ENOSYS or EINVAL.
func closeOnExecFrom(fd int) error {
	return unix.CloseRange(uint(fd), math.MaxUint, unix.CLOSE_RANGE_CLOEXEC)
}
