package daemon

import "golang.org/x/sys/unix"

func dupTo(oldfd, newfd int) error {
	return unix.Dup2(oldfd, newfd)
}

// darwin has no close_range; the per-descriptor sweep is used instead.
func closeOnExecFrom(int) error {
	return ErrUnsupported
}
