//go:build linux || darwin

package daemon

import (
	"errors"
	"fmt"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

type osSystem struct{}

// OS returns the System backed by the running kernel.
func OS() System { return osSystem{} }

func (osSystem) Executable() (string, error) { return os.Executable() }

func (osSystem) Environ() []string { return os.Environ() }

func (osSystem) Spawn(path string, argv, env []string, attr SpawnAttr) (int, error) {
	return spawn(path, argv, env, attr)
}

func (osSystem) Umask(mask int) int { return unix.Umask(mask) }

func (osSystem) Chdir(dir string) error { return unix.Chdir(dir) }

func (osSystem) OpenFileLimit() (int, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, fmt.Errorf("getrlimit: %w", err)
	}
	if rlim.Cur == unix.RLIM_INFINITY || rlim.Cur > math.MaxInt32 {
		return 0, errors.New("descriptor limit is unbounded")
	}
	return int(rlim.Cur), nil
}

func (osSystem) CloseOnExecFrom(fd int) error { return closeOnExecFrom(fd) }

// CloseOnExec ignores EBADF: most numbers in the sweep are not open.
func (osSystem) CloseOnExec(fd int) { unix.CloseOnExec(fd) }

func (osSystem) RedirectStdio(nullDevice string) error {
	f, err := os.OpenFile(nullDevice, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("opening %s: %w", nullDevice, err)
	}
	defer f.Close()

	src := int(f.Fd())
	for fd := 0; fd <= 2; fd++ {
		if err := dupTo(src, fd); err != nil {
			return fmt.Errorf("dup to fd %d: %w", fd, err)
		}
	}
	return nil
}

func (osSystem) Exec(path string, argv, env []string) error {
	return unix.Exec(path, argv, env)
}
