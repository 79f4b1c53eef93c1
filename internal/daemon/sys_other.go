//go:build !linux && !darwin

package daemon

type unsupportedSystem struct{}

// OS returns a System whose process operations fail with ErrUnsupported.
func OS() System { return unsupportedSystem{} }

func (unsupportedSystem) Executable() (string, error) { return "", ErrUnsupported }

func (unsupportedSystem) Environ() []string { return nil }

func (unsupportedSystem) Spawn(string, []string, []string, SpawnAttr) (int, error) {
	return 0, ErrUnsupported
}

func (unsupportedSystem) Umask(int) int { return 0 }

func (unsupportedSystem) Chdir(string) error { return ErrUnsupported }

func (unsupportedSystem) OpenFileLimit() (int, error) { return 0, ErrUnsupported }

func (unsupportedSystem) CloseOnExecFrom(int) error { return ErrUnsupported }

func (unsupportedSystem) CloseOnExec(int) {}

func (unsupportedSystem) RedirectStdio(string) error { return ErrUnsupported }

func (unsupportedSystem) Exec(string, []string, []string) error { return ErrUnsupported }
