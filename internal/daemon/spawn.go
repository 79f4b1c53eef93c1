//go:build linux || darwin

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// spawn starts path as a detached subprocess with stdio bound to the null
// device and returns its pid.
func spawn(path string, argv, env []string, attr SpawnAttr) (int, error) {
	devNull, err := os.OpenFile(attr.NullDevice, os.O_RDWR, 0)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", attr.NullDevice, err)
	}
	defer devNull.Close()

	cmd := &exec.Cmd{
		Path:        path,
		Args:        argv,
		Env:         env,
		Stdin:       devNull,
		Stdout:      devNull,
		Stderr:      devNull,
		SysProcAttr: &syscall.SysProcAttr{Setsid: attr.Setsid},
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("starting %s: %w", path, err)
	}

	// Release instead of Wait; the child outlives us.
	pid := cmd.Process.Pid
	cmd.Process.Release()
	return pid, nil
}
