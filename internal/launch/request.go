package launch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest is returned when a path or argument cannot be placed
// in an exec argument vector.
var ErrInvalidRequest = errors.New("invalid launch request")

// Argv0Policy selects what the daemon sees as argv[0].
type Argv0Policy int

const (
	// Argv0Basename uses the last path element of the executable.
	Argv0Basename Argv0Policy = iota
	// Argv0Path uses the executable path exactly as given.
	Argv0Path
	// Argv0Fixed uses a configured literal name.
	Argv0Fixed
)

// DefaultFixedName is the display name used by Argv0Fixed when none is configured.
const DefaultFixedName = "poller"

func (p Argv0Policy) String() string {
	switch p {
	case Argv0Path:
		return "path"
	case Argv0Fixed:
		return "fixed"
	default:
		return "basename"
	}
}

// ParsePolicy parses "basename", "path" or "fixed", ignoring case.
// An empty string means basename.
func ParsePolicy(s string) (Argv0Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "basename":
		return Argv0Basename, nil
	case "path":
		return Argv0Path, nil
	case "fixed":
		return Argv0Fixed, nil
	}
	return Argv0Basename, fmt.Errorf("unknown argv0 policy %q (want basename, path or fixed)", s)
}

// Request is a single executable to be detached and exec'd.
// Argv[0] is the display name; Argv[1:] are passed through unchanged.
type Request struct {
	Path string
	Argv []string
}

// New builds a Request for path with args, choosing argv[0] by policy.
func New(path string, args []string, policy Argv0Policy, fixedName string) (Request, error) {
	argv := make([]string, 0, len(args)+1)
	argv = append(argv, DisplayName(path, policy, fixedName))
	argv = append(argv, args...)

	req := Request{Path: path, Argv: argv}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// DisplayName returns the argv[0] that policy selects for path.
func DisplayName(path string, policy Argv0Policy, fixedName string) string {
	switch policy {
	case Argv0Path:
		return path
	case Argv0Fixed:
		if fixedName == "" {
			return DefaultFixedName
		}
		return fixedName
	default:
		return basename(path)
	}
}

// basename returns everything after the last '/', or the whole path when
// there is no separator or nothing follows it.
func basename(path string) string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 || i == len(path)-1 {
		return path
	}
	return path[i+1:]
}

// Validate checks the invariants exec relies on.
func (r Request) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("%w: empty executable path", ErrInvalidRequest)
	}
	if strings.IndexByte(r.Path, 0) >= 0 {
		return fmt.Errorf("%w: executable path contains NUL byte", ErrInvalidRequest)
	}
	if len(r.Argv) == 0 {
		return fmt.Errorf("%w: empty argument vector", ErrInvalidRequest)
	}
	for i, a := range r.Argv {
		if strings.IndexByte(a, 0) >= 0 {
			return fmt.Errorf("%w: argument %d contains NUL byte", ErrInvalidRequest, i)
		}
	}
	return nil
}

// Args returns the arguments after the display name.
func (r Request) Args() []string {
	if len(r.Argv) == 0 {
		return nil
	}
	return r.Argv[1:]
}
